package domain

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is one instance of a descriptor's shape keyed by field name. Values
// are expected in the canonical form produced by Descriptor.Normalize.
type Record map[string]any

// Clone returns a shallow copy; record values are immutable scalars.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// Has reports whether the field is present, even when its value is nil.
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Merge returns a copy of r overlaid with every field present in patch.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(patch))
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Keys returns the record field names sorted for deterministic iteration.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Filter is a conjunction of equality and inequality predicates.
type Filter struct {
	Equal    map[string]any
	NotEqual map[string]any
}

// With returns a copy of f that additionally requires field == value.
func (f Filter) With(field string, value any) Filter {
	out := f.clone()
	if out.Equal == nil {
		out.Equal = make(map[string]any, 1)
	}
	out.Equal[field] = value
	return out
}

// Excluding returns a copy of f that additionally requires field != value.
func (f Filter) Excluding(field string, value any) Filter {
	out := f.clone()
	if out.NotEqual == nil {
		out.NotEqual = make(map[string]any, 1)
	}
	out.NotEqual[field] = value
	return out
}

func (f Filter) clone() Filter {
	var out Filter
	if f.Equal != nil {
		out.Equal = make(map[string]any, len(f.Equal))
		for k, v := range f.Equal {
			out.Equal[k] = v
		}
	}
	if f.NotEqual != nil {
		out.NotEqual = make(map[string]any, len(f.NotEqual))
		for k, v := range f.NotEqual {
			out.NotEqual[k] = v
		}
	}
	return out
}

// Matches evaluates the filter against a record. A missing boolean field
// compares equal to false so records written before a flag existed stay live.
func (f Filter) Matches(r Record) bool {
	for field, want := range f.Equal {
		got, ok := r[field]
		if !ok {
			if b, isBool := want.(bool); isBool && !b {
				continue
			}
			return false
		}
		if !ValuesEqual(got, want) {
			return false
		}
	}
	for field, unwanted := range f.NotEqual {
		if got, ok := r[field]; ok && ValuesEqual(got, unwanted) {
			return false
		}
	}
	return true
}

// ValuesEqual compares two canonical values, treating numeric kinds and
// timestamps by value.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

// CompareValues orders two canonical values; nil sorts first.
func CompareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	switch va := a.(type) {
	case string:
		if vb, ok := b.(string); ok {
			return strings.Compare(va, vb)
		}
	case bool:
		if vb, ok := b.(bool); ok {
			switch {
			case va == vb:
				return 0
			case !va:
				return -1
			}
			return 1
		}
	case time.Time:
		if vb, ok := b.(time.Time); ok {
			return va.Compare(vb)
		}
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Order is a single-column sort instruction.
type Order struct {
	Field      string
	Descending bool
}

// ParseOrdering reads the `field` / `-field` query convention. An empty
// string yields nil (store order).
func ParseOrdering(raw string) *Order {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "-") {
		return &Order{Field: strings.TrimSpace(raw[1:]), Descending: true}
	}
	return &Order{Field: raw}
}

// Listing defaults.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 1000
)

// PageRequest selects a 1-based page of a listing.
type PageRequest struct {
	Number int
	Size   int
}

// Offset returns the number of records skipped before the page.
func (p PageRequest) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// PagedResult is the listing envelope returned to callers.
type PagedResult[T any] struct {
	Count       int `json:"count"`
	CurrentPage int `json:"current_page"`
	PageSize    int `json:"page_size"`
	TotalPages  int `json:"total_pages"`
	Results     []T `json:"results"`
}

// NewPagedResult fills the envelope counters for a page of results.
func NewPagedResult[T any](results []T, total int, page PageRequest) PagedResult[T] {
	if results == nil {
		results = []T{}
	}
	pages := 0
	if page.Size > 0 {
		pages = int(math.Ceil(float64(total) / float64(page.Size)))
	}
	return PagedResult[T]{
		Count:       total,
		CurrentPage: page.Number,
		PageSize:    page.Size,
		TotalPages:  pages,
		Results:     results,
	}
}

// FieldErrors maps field names to validation messages.
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Normalize converts a decoded payload into canonical record values. When
// partial is false, required fields must be present. The primary key is
// dropped silently since it is always taken from the route or the store.
func (d Descriptor) Normalize(payload map[string]any, partial bool) (Record, FieldErrors) {
	out := make(Record, len(payload))
	errs := FieldErrors{}
	for name, raw := range payload {
		if name == d.PrimaryKey {
			continue
		}
		field, ok := d.Field(name)
		if !ok {
			errs.add(name, "Unknown field.")
			continue
		}
		if d.Managed(name) {
			errs.add(name, "Field is read-only.")
			continue
		}
		if raw == nil {
			if field.Required {
				errs.add(name, "Field may not be null.")
				continue
			}
			out[name] = nil
			continue
		}
		v, err := normalizeValue(field.Type, raw)
		if err != "" {
			errs.add(name, err)
			continue
		}
		out[name] = v
	}
	if !partial {
		for _, f := range d.Fields {
			if !f.Required || d.Managed(f.Name) || f.Name == d.OwnershipField {
				continue
			}
			if _, present := payload[f.Name]; !present {
				errs.add(f.Name, "Missing data for required field.")
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// NormalizeID converts a raw identifier (usually a path segment) to the
// canonical form of the primary key.
func (d Descriptor) NormalizeID(raw any) (any, bool) {
	v, err := normalizeValue(d.PrimaryKeyField().Type, raw)
	return v, err == ""
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// wholeInt64 reports whether f is integral and inside the int64 range.
// 2^63 is exactly representable as a float64 and already out of range.
func wholeInt64(f float64) bool {
	return f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64
}

func normalizeValue(t FieldType, raw any) (any, string) {
	switch t {
	case FieldInteger:
		switch v := raw.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n, ""
			}
			if f, err := v.Float64(); err == nil && wholeInt64(f) {
				return int64(f), ""
			}
		case string:
			if n, err := json.Number(strings.TrimSpace(v)).Int64(); err == nil {
				return n, ""
			}
		case int:
			return int64(v), ""
		case int32:
			return int64(v), ""
		case int64:
			return v, ""
		case float64:
			if wholeInt64(v) {
				return int64(v), ""
			}
		}
		return nil, "Not a valid integer."
	case FieldFloat:
		switch v := raw.(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, ""
			}
		default:
			if f, ok := asFloat(v); ok {
				return f, ""
			}
		}
		return nil, "Not a valid number."
	case FieldText:
		if s, ok := raw.(string); ok {
			return s, ""
		}
		return nil, "Not a valid string."
	case FieldBoolean:
		if b, ok := raw.(bool); ok {
			return b, ""
		}
		return nil, "Not a valid boolean."
	case FieldTimestamp:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), ""
		case string:
			for _, layout := range timestampLayouts {
				if ts, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
					return ts.UTC(), ""
				}
			}
		}
		return nil, "Not a valid datetime."
	case FieldUUID:
		if s, ok := raw.(string); ok {
			if id, err := uuid.Parse(strings.TrimSpace(s)); err == nil {
				return id.String(), ""
			}
		}
		return nil, "Not a valid UUID."
	}
	return nil, "Unsupported field type."
}
