package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"leavedesk/internal/domain/leave"
)

func newWorkdaysCommand(_ *App) *cobra.Command {
	var holidayFlags []string
	cmd := &cobra.Command{
		Use:   "workdays START END",
		Short: "Count working days in a date range",
		Long: `Count the working days between START and END inclusive. Weekends and
any --holiday dates are excluded. Runs without contacting the API.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDateArg("START", args[0])
			if err != nil {
				return err
			}
			end, err := parseDateArg("END", args[1])
			if err != nil {
				return err
			}
			if end.Before(start) {
				return errors.New("END must be on or after START")
			}
			holidays, err := parseHolidays(holidayFlags)
			if err != nil {
				return err
			}
			set := leave.NewHolidaySet(holidays)
			printWorkdays(cmd, start, end, set)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&holidayFlags, "holiday", nil, "holiday as DATE=NAME, repeatable")
	return cmd
}

func printWorkdays(cmd *cobra.Command, start, end leave.Date, holidays leave.HolidaySet) {
	w := cmd.OutOrStdout()
	days := leave.CountWorkingDays(start, end, holidays)
	excluded := leave.ListExcludedDays(start, end, holidays)
	headColor.Fprintf(w, "%s to %s: %d working day(s)\n", start, end, days)
	if n := len(excluded.Weekends); n > 0 {
		mutedColor.Fprintf(w, "  %d weekend day(s) excluded\n", n)
	}
	for _, h := range excluded.Holidays {
		mutedColor.Fprintf(w, "  %s %s excluded\n", h.Date, h.Name)
	}
}

func newNoticeCommand(app *App) *cobra.Command {
	var (
		required int
		today    string
	)
	cmd := &cobra.Command{
		Use:   "notice START",
		Short: "Check whether START gives enough notice",
		Long: `Check that START lies at least --required business days after today.
Runs without contacting the API.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDateArg("START", args[0])
			if err != nil {
				return err
			}
			now := app.now()
			if today != "" {
				day, err := parseDateArg("--today", today)
				if err != nil {
					return err
				}
				now = day.Time
			}
			w := cmd.OutOrStdout()
			err = leave.ValidateNotice(now, start, required)
			var notice *leave.NoticeError
			if errors.As(err, &notice) {
				errColor.Fprintf(w, "notice too short: %d of %d business day(s)\n", notice.Given, notice.Required)
				fmt.Fprintf(w, "earliest allowed start: %s\n", notice.EarliestAllowed)
				return errors.New("notice period not met")
			}
			if err != nil {
				return err
			}
			okColor.Fprintf(w, "notice ok: %s is %d business day(s) away\n", start, leave.BusinessDaysBetween(leave.DateOf(now), start))
			return nil
		},
	}
	cmd.Flags().IntVar(&required, "required", 0, "required notice in business days")
	cmd.Flags().StringVar(&today, "today", "", "evaluate as if today were this date")
	return cmd
}
