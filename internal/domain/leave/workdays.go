package leave

// HolidaySet maps a calendar day (yyyy-MM-dd) to the holiday name.
// A nil set is valid and contains nothing.
type HolidaySet map[string]string

func NewHolidaySet(holidays []Holiday) HolidaySet {
	set := make(HolidaySet, len(holidays))
	for _, h := range holidays {
		if h.Date.IsZero() {
			continue
		}
		set[h.Date.String()] = h.Name
	}
	return set
}

func (s HolidaySet) Contains(day Date) bool {
	_, ok := s[day.String()]
	return ok
}

func (s HolidaySet) Name(day Date) string {
	return s[day.String()]
}

// CountWorkingDays returns the number of days in [start, end] that are neither
// a weekend nor a holiday. A reversed range counts nothing; it is not reordered.
func CountWorkingDays(start, end Date, holidays HolidaySet) int {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	count := 0
	for day := start; !day.After(end); day = day.AddDays(1) {
		if day.IsWeekend() || holidays.Contains(day) {
			continue
		}
		count++
	}
	return count
}

type ExcludedDays struct {
	Weekends []Date    `json:"weekends"`
	Holidays []Holiday `json:"holidays"`
}

// ListExcludedDays walks the same range as CountWorkingDays and reports the
// days it skipped. A holiday falling on a weekend is listed as a weekend.
func ListExcludedDays(start, end Date, holidays HolidaySet) ExcludedDays {
	out := ExcludedDays{Weekends: []Date{}, Holidays: []Holiday{}}
	if start.IsZero() || end.IsZero() {
		return out
	}
	for day := start; !day.After(end); day = day.AddDays(1) {
		switch {
		case day.IsWeekend():
			out.Weekends = append(out.Weekends, day)
		case holidays.Contains(day):
			out.Holidays = append(out.Holidays, Holiday{Date: day, Name: holidays.Name(day)})
		}
	}
	return out
}
