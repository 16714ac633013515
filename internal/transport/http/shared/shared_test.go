package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	v := NewValidator()
	page := ParsePagination(httptest.NewRequest(http.MethodGet, "/x", nil), v, 50, 200)
	assert.Equal(t, Pagination{Limit: 50}, page)
	assert.False(t, v.HasIssues())

	v = NewValidator()
	page = ParsePagination(httptest.NewRequest(http.MethodGet, "/x?limit=10&offset=20", nil), v, 50, 200)
	assert.Equal(t, Pagination{Limit: 10, Offset: 20}, page)

	v = NewValidator()
	ParsePagination(httptest.NewRequest(http.MethodGet, "/x?limit=500&offset=-1", nil), v, 50, 200)
	require.Len(t, v.Issues(), 2)
}

func TestParseYearMonth(t *testing.T) {
	now := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	v := NewValidator()
	year, month := ParseYearMonth(httptest.NewRequest(http.MethodGet, "/x", nil), now, v)
	assert.Equal(t, 2024, year)
	assert.Equal(t, time.March, month)

	year, month = ParseYearMonth(httptest.NewRequest(http.MethodGet, "/x?year=2025&month=11", nil), now, v)
	assert.Equal(t, 2025, year)
	assert.Equal(t, time.November, month)
	assert.False(t, v.HasIssues())

	ParseYearMonth(httptest.NewRequest(http.MethodGet, "/x?year=25&month=13", nil), now, v)
	assert.Len(t, v.Issues(), 2)
}

func TestValidatorDates(t *testing.T) {
	v := NewValidator()
	start, ok := v.Date("start_date", "2024-01-15")
	require.True(t, ok)
	end, ok := v.Date("end_date", "2024-01-10")
	require.True(t, ok)
	v.DateOrder("start_date", start, "end_date", end)
	require.Len(t, v.Issues(), 2)
	assert.Equal(t, "end_date", v.Issues()[0].Field)

	_, ok = v.Date("start_date", "15/01/2024")
	assert.False(t, ok)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}
