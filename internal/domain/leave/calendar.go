package leave

import "time"

const gridCells = 42

type CalendarCell struct {
	Date    Date            `json:"date"`
	InMonth bool            `json:"in_month"`
	Weekend bool            `json:"weekend"`
	Holiday string          `json:"holiday,omitempty"`
	Entries []CalendarEntry `json:"entries"`
}

type MonthGrid struct {
	Year  int            `json:"year"`
	Month time.Month     `json:"month"`
	Cells []CalendarCell `json:"cells"`
}

// GridRange returns the first and last day shown by the six-week grid for a
// month. The grid starts on the Sunday on or before the first of the month.
func GridRange(year int, month time.Month) (Date, Date) {
	first := NewDate(year, month, 1)
	start := first.AddDays(-int(first.Weekday()))
	return start, start.AddDays(gridCells - 1)
}

func BuildMonthGrid(year int, month time.Month, entries []CalendarEntry, holidays HolidaySet) MonthGrid {
	start, _ := GridRange(year, month)
	grid := MonthGrid{Year: year, Month: month, Cells: make([]CalendarCell, 0, gridCells)}
	for i := 0; i < gridCells; i++ {
		day := start.AddDays(i)
		cell := CalendarCell{
			Date:    day,
			InMonth: day.Month() == month,
			Weekend: day.IsWeekend(),
			Holiday: holidays.Name(day),
			Entries: []CalendarEntry{},
		}
		for _, entry := range entries {
			if entry.StartDate.IsZero() || entry.EndDate.IsZero() {
				continue
			}
			if day.Before(entry.StartDate) || day.After(entry.EndDate) {
				continue
			}
			cell.Entries = append(cell.Entries, entry)
		}
		grid.Cells = append(grid.Cells, cell)
	}
	return grid
}
