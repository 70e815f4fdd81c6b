// Package page holds offset pagination helpers shared by list endpoints.
package page

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Info describes a page of results.
type Info struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Request is a 1-based page number and a page size.
type Request struct {
	Page  int
	Limit int
}

// Normalize clamps page and limit to their defaults and bounds.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	return r
}

// Offset is the number of rows to skip.
func (r Request) Offset() int { return (r.Page - 1) * r.Limit }

// Of returns the page info for total results.
func (r Request) Of(total int) Info {
	pages := 0
	if r.Limit > 0 {
		pages = (total + r.Limit - 1) / r.Limit
	}
	return Info{Page: r.Page, Limit: r.Limit, Total: total, Pages: pages}
}
