package store

import (
	"cmp"
	"slices"
	"strings"

	"github.com/zulandar/coursereel/internal/item"
)

// Sort keys accepted by List.
const (
	SortUpdatedAt = "updatedAt"
	SortCreatedAt = "createdAt"
	SortTitle     = "title"
)

// Filter narrows and orders List results. Zero values match everything; the
// default order is most recently updated first.
type Filter struct {
	Status     item.Status
	CategoryID string
	CreatedBy  string
	Query      string
	Sort       string
	Ascending  bool
}

// List returns copies of the items matching f.
func (s *Store) List(f Filter) []item.WorkItem {
	s.mu.Lock()
	out := make([]item.WorkItem, 0, len(s.order))
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, id := range s.order {
		w := s.items[id]
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		if f.CategoryID != "" && w.CategoryID != f.CategoryID {
			continue
		}
		if f.CreatedBy != "" && w.CreatedByName != f.CreatedBy {
			continue
		}
		if q != "" && !matchesQuery(*w, q) {
			continue
		}
		out = append(out, w.Clone())
	}
	s.mu.Unlock()

	var key func(a, b item.WorkItem) int
	switch f.Sort {
	case SortCreatedAt:
		key = func(a, b item.WorkItem) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortTitle:
		key = func(a, b item.WorkItem) int { return cmp.Compare(a.Title, b.Title) }
	default:
		key = func(a, b item.WorkItem) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	}
	slices.SortStableFunc(out, func(a, b item.WorkItem) int {
		if f.Ascending {
			return key(a, b)
		}
		return key(b, a)
	})
	return out
}

func matchesQuery(w item.WorkItem, q string) bool {
	return strings.Contains(strings.ToLower(w.Title), q) ||
		strings.Contains(strings.ToLower(w.ID), q) ||
		strings.Contains(strings.ToLower(w.CategoryLabel), q) ||
		strings.Contains(strings.ToLower(w.CreatedByName), q)
}
