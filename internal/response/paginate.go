package response

import (
	"net/http"
	"strconv"
)

// Pagination defaults applied when a request omits page or page_size.
const (
	DefaultPage     = 1
	DefaultPageSize = 25
	MaxPageSize     = 500
)

// PageParams are the resolved page index and size of a list request.
type PageParams struct {
	Page     int
	PageSize int
}

// ParsePageParams reads page and page_size from the query string. Missing or
// non-numeric values fall back to the defaults; sizes are clamped to
// [1, MaxPageSize].
func ParsePageParams(r *http.Request) PageParams {
	p := PageParams{Page: DefaultPage, PageSize: DefaultPageSize}
	if r == nil {
		return p
	}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v >= 1 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		switch {
		case v < 1:
			p.PageSize = 1
		case v > MaxPageSize:
			p.PageSize = MaxPageSize
		default:
			p.PageSize = v
		}
	}
	return p
}

// Paginate slices an already filtered and sorted sequence. Pages beyond the
// end yield an empty data slice; pages is at least 1.
func Paginate[T any](items []T, p PageParams) Page[T] {
	total := len(items)
	pages := (total + p.PageSize - 1) / p.PageSize
	if pages < 1 {
		pages = 1
	}
	// Pages past the last one are checked before multiplying so a huge page
	// number cannot overflow the offset.
	start := total
	if p.Page >= 1 && p.Page <= pages {
		start = (p.Page - 1) * p.PageSize
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	data := make([]T, end-start)
	copy(data, items[start:end])
	return Page[T]{Data: data, Page: p.Page, Pages: pages, Results: total}
}

// MakePaginated evaluates the request's X-Filter (filter then sort) over data
// before slicing the requested page. A malformed filter yields a 400 scoped
// to the header.
func MakePaginated[T any](data []T, r *http.Request) Response {
	var raw string
	if r != nil {
		raw = r.Header.Get(FilterHeader)
	}
	f, err := ParseFilter(raw)
	if err != nil {
		return MakeFieldError(FilterHeader, err.Error())
	}
	filtered, err := Apply(data, f)
	if err != nil {
		return FromError(err)
	}
	return Make(Paginate(filtered, ParsePageParams(r)))
}
