// Package pagination carves one page out of an ordered result collection.
package pagination

import (
	"context"
	"strconv"
	"strings"

	"github.com/rpattn/querykit/internal/domain"
)

// DefaultItemsPerPage is used when items_per_page is absent or invalid.
const DefaultItemsPerPage = 50

// Paginator slices collections into pages.
type Paginator struct {
	maxPageSize int
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithMaxPageSize caps items_per_page. Zero or less leaves it uncapped.
func WithMaxPageSize(limit int) Option {
	return func(p *Paginator) {
		if limit > 0 {
			p.maxPageSize = limit
		}
	}
}

// New creates a Paginator.
func New(opts ...Option) *Paginator {
	p := &Paginator{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Paginate returns a page of collection using the defaults of an uncapped
// Paginator.
func Paginate(ctx context.Context, collection domain.Collection, params domain.Parameters) (domain.Page, error) {
	return New().Paginate(ctx, collection, params)
}

// Paginate returns the page selected by params. A page value that is not an
// integer falls back to page 1; one outside 1..total pages falls back to the
// last page. Only collection failures are returned as errors.
func (p *Paginator) Paginate(ctx context.Context, collection domain.Collection, params domain.Parameters) (domain.Page, error) {
	size := p.pageSize(params)

	total, err := collection.Count(ctx)
	if err != nil {
		return domain.Page{}, domain.NewExecutionError("count results", err)
	}

	numPages := pageCount(total, size)
	number := pageNumber(params, numPages)

	items, err := collection.Slice(ctx, (number-1)*size, size)
	if err != nil {
		return domain.Page{}, domain.NewExecutionError("slice results", err)
	}
	if items == nil {
		items = []domain.Entity{}
	}

	return domain.Page{
		Items:      items,
		Number:     number,
		Size:       size,
		TotalPages: numPages,
		TotalItems: total,
	}, nil
}

func (p *Paginator) pageSize(params domain.Parameters) int {
	size := DefaultItemsPerPage
	if raw, ok := params.Lookup(domain.ParamItemsPerPage); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
			size = parsed
		}
	}
	if p.maxPageSize > 0 && size > p.maxPageSize {
		size = p.maxPageSize
	}
	return size
}

// pageCount never returns less than one so an empty collection still has a
// first page.
func pageCount(total, size int) int {
	if total <= 0 {
		return 1
	}
	pages := total / size
	if total%size != 0 {
		pages++
	}
	return max(pages, 1)
}

func pageNumber(params domain.Parameters, numPages int) int {
	raw, ok := params.Lookup(domain.ParamPage)
	if !ok {
		return 1
	}
	number, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 1
	}
	if number < 1 || number > numPages {
		return numPages
	}
	return number
}
