package shared

import (
	"net/http"
	"strconv"
)

type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset, ignoring malformed values and capping limit at maxLimit.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) Page {
	q := r.URL.Query()
	page := Page{Limit: defaultLimit}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		page.Limit = min(v, maxLimit)
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		page.Offset = v
	}
	return page
}

// SetTotalCount reports the unpaged result size to list callers.
func SetTotalCount(w http.ResponseWriter, total int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
}
