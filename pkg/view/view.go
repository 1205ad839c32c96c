// Package view derives filtered, paginated entity lists from data that is
// already loaded. Nothing here fetches.
package view

import (
	"strings"

	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/results"
)

// DefaultPageSize is used when a page size of zero or less is requested.
const DefaultPageSize = 10

// StatusFilter selects entities by publication status or readiness.
type StatusFilter string

const (
	FilterAll          StatusFilter = "all"
	FilterReady        StatusFilter = "ready"
	FilterNotPublished StatusFilter = StatusFilter(publication.StatusNotPublished)
	FilterPublished    StatusFilter = StatusFilter(publication.StatusPublished)
	FilterCancelled    StatusFilter = StatusFilter(publication.StatusCancelled)
)

// ParseStatusFilter maps a query value to a StatusFilter. Empty means all.
func ParseStatusFilter(s string) (StatusFilter, bool) {
	switch f := StatusFilter(strings.ToUpper(s)); f {
	case "", "ALL":
		return FilterAll, true
	case "READY":
		return FilterReady, true
	case FilterNotPublished, FilterPublished, FilterCancelled:
		return f, true
	}
	return "", false
}

// Entity pairs an aggregated node with its publication record. The node's
// children are the entity's subordinate units.
type Entity struct {
	Node   results.Node       `json:"node"`
	Record publication.Record `json:"record"`
	Ready  bool               `json:"ready"`
}

// Filter is the user's current selection.
type Filter struct {
	Status StatusFilter `json:"status"`
	Search string       `json:"search"`
}

// Page is one page of a filtered collection.
type Page struct {
	Items      []Entity `json:"items"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// Match returns the entities selected by f. Readiness is recomputed for
// every entity. A search matches the entity code or label case-insensitively;
// when only subordinate units match, the entity keeps just those units, and
// an entity with no match at all is dropped.
func Match(entities []Entity, f Filter) []Entity {
	needle := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		e.Ready = publication.IsReadyToPublish(e.Node, e.Record)
		if !statusMatches(e, f.Status) {
			continue
		}
		if needle == "" || matches(e.Node, needle) {
			out = append(out, e)
			continue
		}

		var kept []results.Node
		for _, c := range e.Node.Children {
			if matches(c, needle) {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			continue
		}
		e.Node.Children = kept
		out = append(out, e)
	}
	return out
}

// Apply filters entities and cuts the requested page. The page number is
// clamped into [1, TotalPages].
func Apply(entities []Entity, f Filter, page, pageSize int) Page {
	return paginate(Match(entities, f), page, pageSize)
}

func paginate(matched []Entity, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total := len(matched)
	totalPages := (total + pageSize - 1) / pageSize
	page = clamp(page, totalPages)

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return Page{
		Items:      matched[start:end],
		Total:      total,
		TotalPages: totalPages,
		Page:       page,
		PageSize:   pageSize,
	}
}

func clamp(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

func statusMatches(e Entity, s StatusFilter) bool {
	switch s {
	case "", FilterAll:
		return true
	case FilterReady:
		return e.Ready
	default:
		return string(e.Record.Status) == string(s)
	}
}

func matches(n results.Node, needle string) bool {
	return strings.Contains(strings.ToLower(n.ID), needle) ||
		strings.Contains(strings.ToLower(n.Label), needle)
}

// Paginator keeps a filter and current page over a loaded collection, the
// way a list screen does. Changing the filter always returns to page 1.
type Paginator struct {
	entities []Entity
	filter   Filter
	page     int
	pageSize int
	matched  []Entity
}

// NewPaginator starts on page 1 with no filter.
func NewPaginator(entities []Entity, pageSize int) *Paginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := &Paginator{entities: entities, pageSize: pageSize, page: 1, filter: Filter{Status: FilterAll}}
	p.matched = Match(entities, p.filter)
	return p
}

// SetFilter replaces the filter and resets to the first page.
func (p *Paginator) SetFilter(f Filter) Page {
	p.filter = f
	p.matched = Match(p.entities, f)
	p.page = 1
	return p.Current()
}

// SetPage moves to page, clamped into range.
func (p *Paginator) SetPage(page int) Page {
	p.page = page
	return p.Current()
}

// Current returns the current page.
func (p *Paginator) Current() Page {
	pg := paginate(p.matched, p.page, p.pageSize)
	p.page = pg.Page
	return pg
}
