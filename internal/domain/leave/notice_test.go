package leave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNoticeFailsWithCalendarDayEarliest(t *testing.T) {
	today := time.Date(2024, time.January, 1, 15, 45, 0, 0, time.UTC)
	err := ValidateNotice(today, NewDate(2024, time.January, 2), 5)

	var nerr *NoticeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "2024-01-06", nerr.EarliestAllowed.String())
	assert.Equal(t, 1, nerr.Given)
}

func TestValidateNoticePasses(t *testing.T) {
	today := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	assert.NoError(t, ValidateNotice(today, NewDate(2024, time.January, 8), 5))
}

func TestValidateNoticeIgnoresHolidays(t *testing.T) {
	// Business days here are plain weekdays; a holiday inside the window still counts.
	assert.Equal(t, 4, BusinessDaysBetween(NewDate(2024, time.December, 23), NewDate(2024, time.December, 27)))
}

func TestValidateNoticeNoRequirement(t *testing.T) {
	assert.NoError(t, ValidateNotice(time.Now(), NewDate(2000, time.January, 1), 0))
}

func TestBusinessDaysBetweenNegative(t *testing.T) {
	assert.Equal(t, -1, BusinessDaysBetween(NewDate(2024, time.January, 8), NewDate(2024, time.January, 5)))
}
