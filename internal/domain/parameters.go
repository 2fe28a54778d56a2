package domain

import (
	"net/url"
	"sort"
)

// Reserved parameter keys. They steer sorting, exclusion, lookup and
// pagination and never become predicates, even when they collide with a
// field name.
const (
	ParamSort            = "sort"
	ParamOrder           = "order"
	ParamExcludeProperty = "exclude_property"
	ParamExcludeValue    = "exclude_value"
	ParamQuery           = "q"
	ParamItemsPerPage    = "items_per_page"
	ParamPage            = "page"
)

var reservedParams = map[string]struct{}{
	ParamSort:            {},
	ParamOrder:           {},
	ParamExcludeProperty: {},
	ParamExcludeValue:    {},
	ParamQuery:           {},
	ParamItemsPerPage:    {},
	ParamPage:            {},
}

// IsReservedParam reports whether key is a control key.
func IsReservedParam(key string) bool {
	_, ok := reservedParams[key]
	return ok
}

// Parameters is a multi-valued mapping of untrusted request input. Operations
// treat it as immutable and build variants with Clone.
type Parameters map[string][]string

// ParametersFromValues copies url.Values into Parameters.
func ParametersFromValues(values url.Values) Parameters {
	params := make(Parameters, len(values))
	for key, vals := range values {
		params[key] = append([]string(nil), vals...)
	}
	return params
}

// Get returns the last value for key, or "" when absent.
func (p Parameters) Get(key string) string {
	vals := p[key]
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}

// Lookup is Get with a presence flag.
func (p Parameters) Lookup(key string) (string, bool) {
	vals, ok := p[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

// Values returns a copy of every value for key.
func (p Parameters) Values(key string) []string {
	vals := p[key]
	if len(vals) == 0 {
		return nil
	}
	return append([]string(nil), vals...)
}

// Has reports whether key carries at least one value.
func (p Parameters) Has(key string) bool {
	return len(p[key]) > 0
}

// Keys returns the keys in sorted order.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (p Parameters) Clone() Parameters {
	clone := make(Parameters, len(p))
	for key, vals := range p {
		clone[key] = append([]string(nil), vals...)
	}
	return clone
}

// Reserved returns a new mapping holding only the reserved keys of p.
func (p Parameters) Reserved() Parameters {
	reserved := make(Parameters)
	for key, vals := range p {
		if IsReservedParam(key) {
			reserved[key] = append([]string(nil), vals...)
		}
	}
	return reserved
}
