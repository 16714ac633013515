package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"leavedesk/internal/domain/leave"
)

var (
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
	headColor  = color.New(color.Bold)
	mutedColor = color.New(color.Faint)
)

func statusColor(status leave.Status) *color.Color {
	switch status {
	case leave.StatusApproved:
		return okColor
	case leave.StatusRejected, leave.StatusCancelled:
		return errColor
	case leave.StatusPending, leave.StatusEscalated:
		return warnColor
	default:
		return mutedColor
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printStale(w io.Writer, stale bool) {
	if stale {
		warnColor.Fprintln(w, "! showing cached data, the leave API could not be reached")
	}
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		warnColor.Fprintln(w, "! "+msg)
	}
}

func formatDays(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}

func printRequests(w io.Writer, items []leave.LeaveRequest) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTYPE\tSTART\tEND\tDAYS\tSTATUS")
	for _, r := range items {
		typeName := r.LeaveTypeName
		if typeName == "" {
			typeName = r.LeaveTypeID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, typeName, r.StartDate, r.EndDate, r.DaysRequested,
			statusColor(r.Status).Sprint(string(r.Status)))
	}
	_ = tw.Flush()
}
