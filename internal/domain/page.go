package domain

import "context"

// Collection is an ordered result set that can be counted and sliced.
// Implementations backed by a remote store may defer execution until one of
// these methods is called.
type Collection interface {
	Count(ctx context.Context) (int, error)
	Slice(ctx context.Context, offset, limit int) ([]Entity, error)
}

// EntityList is an in-memory Collection.
type EntityList []Entity

// Count implements Collection.
func (l EntityList) Count(_ context.Context) (int, error) {
	return len(l), nil
}

// Slice implements Collection. Out-of-range windows yield an empty slice.
func (l EntityList) Slice(_ context.Context, offset, limit int) ([]Entity, error) {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(l) {
		return []Entity{}, nil
	}
	end := len(l)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	out := make([]Entity, end-offset)
	copy(out, l[offset:end])
	return out, nil
}

// Page is one bounded window of a Collection.
type Page struct {
	Items      []Entity `json:"items"`
	Number     int      `json:"page"`
	Size       int      `json:"items_per_page"`
	TotalPages int      `json:"total_pages"`
	TotalItems int      `json:"total_items"`
}

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool {
	return p.Number < p.TotalPages
}

// HasPrevious reports whether an earlier page exists.
func (p Page) HasPrevious() bool {
	return p.Number > 1
}

// StartIndex is the 1-based index of the first item on the page, or 0 when
// the collection is empty.
func (p Page) StartIndex() int {
	if p.TotalItems == 0 {
		return 0
	}
	return (p.Number-1)*p.Size + 1
}

// EndIndex is the 1-based index of the last item on the page.
func (p Page) EndIndex() int {
	if p.TotalItems == 0 {
		return 0
	}
	return p.StartIndex() + len(p.Items) - 1
}
