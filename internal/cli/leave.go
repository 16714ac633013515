package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"leavedesk/internal/domain/leave"
)

const (
	maxDocuments     = 5
	maxDocumentBytes = 2 * 1024 * 1024
)

func newDashboardCommand(app *App) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show balances and recent requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, sess, err := app.connect(cmd)
			if err != nil {
				return err
			}
			ctx, _ := requestContext(cmd)
			d, err := svc.Dashboard(ctx, sess, year)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printStale(w, d.Stale)
			printWarnings(w, d.Warnings)

			headColor.Fprintf(w, "Balances %d\n", d.Year)
			tw := newTable(w)
			fmt.Fprintln(tw, "TYPE\tTOTAL\tUSED\tPENDING\tAVAILABLE")
			for _, b := range d.Balances {
				name := b.LeaveTypeName
				if name == "" {
					if lt := leave.FindLeaveType(d.LeaveTypes, b.LeaveTypeID); lt != nil {
						name = lt.Name
					} else {
						name = b.LeaveTypeID
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name,
					formatDays(b.TotalDays), formatDays(b.UsedDays), formatDays(b.PendingDays), formatDays(b.AvailableDays))
			}
			_ = tw.Flush()

			fmt.Fprintln(w)
			headColor.Fprintln(w, "Requests")
			if len(d.Requests) == 0 {
				mutedColor.Fprintln(w, "no leave requests")
				return nil
			}
			printRequests(w, d.Requests)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "balance year (default current year)")
	return cmd
}

func newHolidaysCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "holidays",
		Short: "List public holidays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, sess, err := app.connect(cmd)
			if err != nil {
				return err
			}
			ctx, _ := requestContext(cmd)
			holidays := svc.Holidays(ctx, sess)
			w := cmd.OutOrStdout()
			if len(holidays) == 0 {
				mutedColor.Fprintln(w, "no holidays published")
				return nil
			}
			tw := newTable(w)
			for _, h := range holidays {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Date, h.Date.Weekday().String()[:3], h.Name)
			}
			return tw.Flush()
		},
	}
}

func newRequestsCommand(app *App) *cobra.Command {
	var (
		status     string
		leaveType  string
		sortBy     string
		descending bool
		limit      int
		offset     int
	)
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List your leave requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := leave.RequestQuery{
				Status:      leave.Status(strings.ToLower(strings.TrimSpace(status))),
				LeaveTypeID: strings.TrimSpace(leaveType),
				SortBy:      sortBy,
				Descending:  descending,
				Limit:       limit,
				Offset:      offset,
			}
			switch q.Status {
			case "", leave.StatusPending, leave.StatusApproved, leave.StatusRejected, leave.StatusCancelled, leave.StatusEscalated:
			default:
				return fmt.Errorf("unknown status %q", status)
			}
			if q.SortBy != leave.SortByCreatedAt && q.SortBy != leave.SortByStartDate {
				return fmt.Errorf("--sort must be %s or %s", leave.SortByCreatedAt, leave.SortByStartDate)
			}
			if q.Limit < 0 || q.Offset < 0 {
				return errors.New("--limit and --offset must not be negative")
			}

			svc, sess, err := app.connect(cmd)
			if err != nil {
				return err
			}
			ctx, _ := requestContext(cmd)
			page, err := svc.Requests(ctx, sess, q)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printStale(w, page.Stale)
			if len(page.Items) == 0 {
				mutedColor.Fprintln(w, "no matching requests")
				return nil
			}
			printRequests(w, page.Items)
			mutedColor.Fprintf(w, "%d of %d request(s)\n", len(page.Items), page.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only requests with this status")
	cmd.Flags().StringVar(&leaveType, "type", "", "only requests of this leave type id")
	cmd.Flags().StringVar(&sortBy, "sort", leave.SortByCreatedAt, "sort by created_at or start_date")
	cmd.Flags().BoolVar(&descending, "desc", false, "newest first")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func newSubmitCommand(app *App) *cobra.Command {
	var (
		form      leave.DraftRequest
		start     string
		end       string
		documents []string
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a leave request",
		Long: `Validate a leave request locally and submit it. Nothing is sent when a
local check fails. With --dry-run the request is only validated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if form.StartDate, err = parseDateArg("--start", start); err != nil {
				return err
			}
			if form.EndDate, err = parseDateArg("--end", end); err != nil {
				return err
			}
			if form.Documents, err = readDocuments(documents); err != nil {
				return err
			}

			svc, sess, err := app.connect(cmd)
			if err != nil {
				return err
			}
			ctx, requestID := requestContext(cmd)
			w := cmd.OutOrStdout()

			if dryRun {
				days, err := svc.Validate(ctx, sess, form)
				if err != nil {
					return err
				}
				okColor.Fprintf(w, "request is valid: %d working day(s)\n", days)
				return nil
			}

			outcome, err := svc.Submit(ctx, sess, form)
			if err != nil {
				var submitErr *leave.SubmitError
				if errors.As(err, &submitErr) {
					mutedColor.Fprintf(cmd.ErrOrStderr(), "request id %s\n", requestID)
				}
				return err
			}
			okColor.Fprintf(w, "submitted: %d working day(s), %s\n", outcome.DaysRequested, outcome.State)
			if outcome.Request != nil && outcome.Request.ID != "" {
				fmt.Fprintf(w, "request id: %s\n", outcome.Request.ID)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.LeaveTypeID, "type", "", "leave type id")
	f.StringVar(&start, "start", "", "first day of leave (yyyy-mm-dd)")
	f.StringVar(&end, "end", "", "last day of leave (yyyy-mm-dd)")
	f.StringVar(&form.Reason, "reason", "", "reason for the request")
	f.StringVar(&form.ContactNumber, "contact", "", "contact number while away")
	f.StringArrayVar(&documents, "document", nil, "supporting document path, repeatable")
	f.BoolVar(&dryRun, "dry-run", false, "validate without submitting")
	return cmd
}

func readDocuments(paths []string) ([]leave.Document, error) {
	if len(paths) > maxDocuments {
		return nil, fmt.Errorf("at most %d documents are allowed", maxDocuments)
	}
	docs := make([]leave.Document, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(io.LimitReader(f, maxDocumentBytes+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(raw) > maxDocumentBytes {
			return nil, fmt.Errorf("%s is larger than 2MB", path)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = http.DetectContentType(raw)
		}
		docs = append(docs, leave.Document{
			Name:     filepath.Base(path),
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(raw),
		})
	}
	return docs, nil
}

func newCancelCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel REQUEST_ID",
		Short: "Cancel a pending leave request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, sess, err := app.connect(cmd)
			if err != nil {
				return err
			}
			ctx, _ := requestContext(cmd)
			outcome, err := svc.Cancel(ctx, sess, args[0])
			if errors.Is(err, leave.ErrNotCancellable) {
				return fmt.Errorf("%s is %s: %s", outcome.RequestID, outcome.State, outcome.Message)
			}
			if err != nil {
				if outcome.Message != "" {
					return fmt.Errorf("%s: %w", outcome.Message, err)
				}
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "%s %s\n", outcome.RequestID, outcome.State)
			return nil
		},
	}
}

func newCalendarCommand(app *App) *cobra.Command {
	var (
		year  int
		month int
	)
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show the team leave calendar for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := app.now()
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}
			if month < 1 || month > 12 {
				return errors.New("--month must be between 1 and 12")
			}
			svc, sess, err := app.connect(cmd)
			if err != nil {
				return err
			}
			ctx, _ := requestContext(cmd)
			grid, err := svc.Calendar(ctx, sess, year, time.Month(month))
			if err != nil {
				return err
			}
			printGrid(cmd.OutOrStdout(), grid)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "calendar year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "calendar month 1-12 (default current)")
	return cmd
}

// printGrid draws the six-week grid. A day shows its number and, when
// anyone is away, the count in brackets. Holidays are marked with '*'.
func printGrid(w io.Writer, grid leave.MonthGrid) {
	headColor.Fprintf(w, "%s %d\n", grid.Month, grid.Year)
	fmt.Fprintln(w, " Sun    Mon    Tue    Wed    Thu    Fri    Sat")

	var (
		absences []leave.CalendarEntry
		seen     = map[string]bool{}
		holidays []string
	)
	for i, cell := range grid.Cells {
		label := "      "
		if cell.InMonth {
			mark := " "
			if cell.Holiday != "" {
				mark = "*"
				holidays = append(holidays, fmt.Sprintf("%s %s", cell.Date, cell.Holiday))
			}
			label = fmt.Sprintf("%2d%s", cell.Date.Day(), mark)
			if n := len(cell.Entries); n > 0 {
				label += fmt.Sprintf("(%d)", n)
			} else {
				label += "   "
			}
		}
		c := okColor
		switch {
		case !cell.InMonth:
			c = mutedColor
		case cell.Weekend || cell.Holiday != "":
			c = mutedColor
		case len(cell.Entries) > 0:
			c = warnColor
		}
		c.Fprint(w, " "+label+" ")
		if i%7 == 6 {
			fmt.Fprintln(w)
		}
		if !cell.InMonth {
			continue
		}
		for _, e := range cell.Entries {
			key := e.RequestID + "|" + e.EmployeeID
			if !seen[key] {
				seen[key] = true
				absences = append(absences, e)
			}
		}
	}

	for _, h := range holidays {
		mutedColor.Fprintln(w, "* "+h)
	}
	if len(absences) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := newTable(w)
	fmt.Fprintln(tw, "WHO\tTYPE\tFROM\tTO\tSTATUS")
	for _, e := range absences {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.EmployeeName, e.LeaveTypeName, e.StartDate, e.EndDate, statusColor(e.Status).Sprint(string(e.Status)))
	}
	_ = tw.Flush()
}
