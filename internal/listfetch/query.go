// Package listfetch serves server-paginated entity lists: debounced search,
// a shared page cache, and last-request-wins loading per list view.
package listfetch

import (
	"net/url"
	"strconv"
	"strings"
)

// QueryState is what a list view is currently asking for. SearchTerm is the
// raw input; only DebouncedSearchTerm takes part in requests.
type QueryState struct {
	PageIndex           int    `json:"page_index"`
	PageSize            int    `json:"page_size"`
	SearchTerm          string `json:"search_term"`
	DebouncedSearchTerm string `json:"debounced_search_term"`
}

func (q QueryState) search() string {
	return strings.TrimSpace(q.DebouncedSearchTerm)
}

// Params derives the request parameters. Page is one-based; search is sent
// only when the trimmed debounced term is non-empty.
func (q QueryState) Params() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.PageIndex+1))
	v.Set("per_page", strconv.Itoa(q.PageSize))
	if s := q.search(); s != "" {
		v.Set("search", s)
	}
	return v
}

// Tuple identifies one distinct request.
type Tuple struct {
	PageIndex int
	PageSize  int
	Search    string
}

func (q QueryState) Tuple() Tuple {
	return Tuple{PageIndex: q.PageIndex, PageSize: q.PageSize, Search: q.search()}
}

// Key identifies a cached page. PageSize is not part of it: a page size change
// on an otherwise unchanged page and search may be answered by a page cached
// at the old size.
type Key struct {
	Prefix    string
	PageIndex int
	Search    string
}

func KeyFor(prefix string, q QueryState) Key {
	return Key{Prefix: prefix, PageIndex: q.PageIndex, Search: q.search()}
}
