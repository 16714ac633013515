package shared

import (
	"net/http"
	"strconv"
	"strings"
)

type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset. Malformed or out-of-range values are
// reported on v; a missing limit falls back to defaultLimit.
func ParsePagination(r *http.Request, v *Validator, defaultLimit, maxLimit int) Pagination {
	page := Pagination{Limit: defaultLimit}
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || (maxLimit > 0 && n > maxLimit) {
			v.Add("limit", "must be between 1 and "+strconv.Itoa(maxLimit))
		} else {
			page.Limit = n
		}
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			v.Add("offset", "must be zero or more")
		} else {
			page.Offset = n
		}
	}
	return page
}
