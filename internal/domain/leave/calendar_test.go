package leave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMonthGridLayout(t *testing.T) {
	grid := BuildMonthGrid(2024, time.February, nil, nil)
	require.Len(t, grid.Cells, 42)
	assert.Equal(t, "2024-01-28", grid.Cells[0].Date.String(), "grid starts on the sunday before the 1st")
	assert.False(t, grid.Cells[0].InMonth)
	assert.True(t, grid.Cells[4].InMonth)
	assert.Equal(t, "2024-02-01", grid.Cells[4].Date.String())
	assert.Equal(t, "2024-03-09", grid.Cells[41].Date.String())
}

func TestBuildMonthGridOverlay(t *testing.T) {
	entries := []CalendarEntry{{
		RequestID: "r1",
		StartDate: NewDate(2024, time.February, 5),
		EndDate:   NewDate(2024, time.February, 6),
		Status:    StatusApproved,
	}}
	holidays := NewHolidaySet([]Holiday{{Date: NewDate(2024, time.February, 19), Name: "Presidents Day"}})
	grid := BuildMonthGrid(2024, time.February, entries, holidays)

	for _, cell := range grid.Cells {
		switch cell.Date.String() {
		case "2024-02-05", "2024-02-06":
			assert.Len(t, cell.Entries, 1, cell.Date.String())
		case "2024-02-07":
			assert.Empty(t, cell.Entries, cell.Date.String())
		case "2024-02-19":
			assert.Equal(t, "Presidents Day", cell.Holiday)
		case "2024-02-03":
			assert.True(t, cell.Weekend, cell.Date.String())
		}
	}
}
