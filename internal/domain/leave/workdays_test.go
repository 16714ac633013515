package leave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountWorkingDaysSingleWeekday(t *testing.T) {
	day := NewDate(2024, time.January, 3)
	assert.Equal(t, 1, CountWorkingDays(day, day, nil))
}

func TestCountWorkingDaysSingleWeekendOrHoliday(t *testing.T) {
	saturday := NewDate(2024, time.January, 6)
	assert.Equal(t, 0, CountWorkingDays(saturday, saturday, nil), "saturday")

	newYear := NewDate(2024, time.January, 1)
	holidays := NewHolidaySet([]Holiday{{Date: newYear, Name: "New Year"}})
	assert.Equal(t, 0, CountWorkingDays(newYear, newYear, holidays), "holiday")
}

func TestCountWorkingDaysSpanningWeekend(t *testing.T) {
	start := NewDate(2024, time.January, 4)
	end := NewDate(2024, time.January, 9)
	assert.Equal(t, 4, CountWorkingDays(start, end, nil))

	holidays := NewHolidaySet([]Holiday{{Date: NewDate(2024, time.January, 8), Name: "Company Day"}})
	assert.Equal(t, 3, CountWorkingDays(start, end, holidays))
}

func TestCountWorkingDaysReversedRange(t *testing.T) {
	start := NewDate(2024, time.January, 10)
	end := NewDate(2024, time.January, 8)
	assert.Zero(t, CountWorkingDays(start, end, nil))
}

func TestListExcludedDays(t *testing.T) {
	holidays := NewHolidaySet([]Holiday{
		{Date: NewDate(2024, time.January, 8), Name: "Company Day"},
		{Date: NewDate(2024, time.January, 6), Name: "Weekend Festival"},
	})
	out := ListExcludedDays(NewDate(2024, time.January, 5), NewDate(2024, time.January, 9), holidays)

	require.Len(t, out.Weekends, 2)
	assert.Equal(t, "2024-01-06", out.Weekends[0].String())
	assert.Equal(t, "2024-01-07", out.Weekends[1].String())
	require.Len(t, out.Holidays, 1)
	assert.Equal(t, "Company Day", out.Holidays[0].Name)
}

func TestDateJSON(t *testing.T) {
	var d Date
	require.NoError(t, d.UnmarshalJSON([]byte(`"2024-03-05T10:30:00Z"`)))
	assert.Equal(t, "2024-03-05", d.String())

	raw, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-05"`, string(raw))
}
