package domain

import "strings"

// SortDirection represents ordering direction for sortable fields.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// ParseSortDirection maps the order parameter onto a direction. Anything other
// than "desc" sorts ascending.
func ParseSortDirection(raw string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(raw), string(SortDirectionDesc)) {
		return SortDirectionDesc
	}
	return SortDirectionAsc
}

// SortSpec captures ordering preferences for a query.
type SortSpec struct {
	Field     string
	FieldType FieldType
	Direction SortDirection
}
