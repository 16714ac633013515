package shared

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"leavedesk/internal/domain/leave"
)

// ParseDate accepts RFC3339 or YYYY-MM-DD. An empty value is the zero date.
func ParseDate(value string) (leave.Date, error) {
	if strings.TrimSpace(value) == "" {
		return leave.Date{}, nil
	}
	return leave.ParseDate(value)
}

// ParseYearMonth reads ?year= and ?month=, defaulting to now's month.
func ParseYearMonth(r *http.Request, now time.Time, v *Validator) (int, time.Month) {
	year, month := now.Year(), now.Month()
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1900 || parsed > 9999 {
			v.Add("year", "must be a four digit year")
		} else {
			year = parsed
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			v.Add("month", "must be between 1 and 12")
		} else {
			month = time.Month(parsed)
		}
	}
	return year, month
}
