package leave

import (
	"fmt"
	"time"
)

type NoticeError struct {
	Required        int
	Given           int
	EarliestAllowed Date
}

func (e *NoticeError) Error() string {
	return fmt.Sprintf("notice period of %d business days not met, earliest allowed start is %s", e.Required, e.EarliestAllowed)
}

// BusinessDaysBetween counts Monday-Friday days in (from, to]. It is negative
// when to is before from. Holidays are not excluded here.
func BusinessDaysBetween(from, to Date) int {
	if from.Equal(to) {
		return 0
	}
	sign := 1
	if to.Before(from) {
		from, to = to, from
		sign = -1
	}
	count := 0
	for day := from.AddDays(1); !day.After(to); day = day.AddDays(1) {
		if !day.IsWeekend() {
			count++
		}
	}
	return sign * count
}

// ValidateNotice checks that requestedStart lies at least requiredBusinessDays
// weekdays after today. The earliest allowed date reported on failure is a
// plain calendar-day offset from today.
func ValidateNotice(today time.Time, requestedStart Date, requiredBusinessDays int) error {
	if requiredBusinessDays <= 0 {
		return nil
	}
	day := DateOf(today)
	given := BusinessDaysBetween(day, requestedStart)
	if given >= requiredBusinessDays {
		return nil
	}
	return &NoticeError{
		Required:        requiredBusinessDays,
		Given:           given,
		EarliestAllowed: day.AddDays(requiredBusinessDays),
	}
}
