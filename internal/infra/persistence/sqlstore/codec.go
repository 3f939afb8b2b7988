package sqlstore

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"resourcechassis/internal/entitymodel/sqlbundle"
	"resourcechassis/pkg/domain"
)

// TimestampLayout is the fixed-width text form used where the dialect stores
// timestamps as text, so lexical order matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

var parseLayouts = []string{TimestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// encodeField converts a canonical record value into a driver argument.
func (s *Store) encodeField(d domain.Descriptor, name string, v any) (any, error) {
	f, ok := d.Field(name)
	if !ok {
		return nil, fmt.Errorf("sql store: %s has no column %q", d.Entity, name)
	}
	if v == nil {
		return nil, nil
	}
	if s.dialect.Name != sqlbundle.DialectSQLite {
		return v, nil
	}
	switch f.Type {
	case domain.FieldBoolean:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case domain.FieldTimestamp:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(TimestampLayout), nil
		}
	}
	return v, nil
}

// decodeRow maps scanned driver values back to canonical record values.
func decodeRow(d domain.Descriptor, row map[string]any) (domain.Record, error) {
	rec := make(domain.Record, len(d.Fields))
	for _, f := range d.Fields {
		raw, ok := row[f.Name]
		if !ok {
			continue
		}
		v, err := decodeValue(f.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", d.Entity, f.Name, err)
		}
		rec[f.Name] = v
	}
	return rec, nil
}

func decodeValue(t domain.FieldType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	switch t {
	case domain.FieldInteger:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int32:
			return int64(v), nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case string:
			return strconv.ParseInt(v, 10, 64)
		}
	case domain.FieldFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(v, 64)
		}
	case domain.FieldBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case string:
			return strconv.ParseBool(v)
		}
	case domain.FieldTimestamp:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			for _, layout := range parseLayouts {
				if ts, err := time.Parse(layout, v); err == nil {
					return ts.UTC(), nil
				}
			}
			return nil, fmt.Errorf("unparseable timestamp %q", v)
		}
	case domain.FieldText, domain.FieldUUID:
		switch v := raw.(type) {
		case string:
			return v, nil
		case [16]byte:
			return fmt.Sprintf("%x-%x-%x-%x-%x", v[0:4], v[4:6], v[6:8], v[8:10], v[10:16]), nil
		}
		return fmt.Sprint(raw), nil
	}
	return nil, fmt.Errorf("unexpected %T for %s column", raw, t)
}
