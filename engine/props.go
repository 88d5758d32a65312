package engine

import (
	"fmt"
	"math"
	"sort"
)

// Props holds the property values set on a node. Values arrive from a
// decoder and are numbers (float64 or any Go integer type), strings, bools,
// slices or maps.
type Props map[string]any

// Clone returns a shallow copy of p. A nil Props clones to an empty map.
func (p Props) Clone() Props {
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out
}

// Keys returns the property names in sorted order.
func (p Props) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Number returns a numeric property. A missing key yields def; a present
// value that is not a number yields InvalidPropertyType.
func (p Props) Number(key string, def float64) (float64, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def, nil
	}

	v, ok := toFloat(raw)
	if !ok {
		return 0, fmt.Errorf("%w: %q must be a number, got %T", InvalidPropertyType, key, raw)
	}

	return v, nil
}

// Index returns a non-negative integer property. Fractions are truncated
// toward zero. Negative or non-finite values yield InvalidPropertyValue.
func (p Props) Index(key string, def int) (int, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def, nil
	}

	v, ok := toFloat(raw)
	if !ok {
		return 0, fmt.Errorf("%w: %q must be a number, got %T", InvalidPropertyType, key, raw)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %q must be a non-negative integer, got %v", InvalidPropertyValue, key, v)
	}

	return int(v), nil
}

// String returns a string property. A missing key yields def; any other type
// yields InvalidPropertyType.
func (p Props) String(key, def string) (string, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def, nil
	}

	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string, got %T", InvalidPropertyType, key, raw)
	}

	return s, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}

		return 0, true
	default:
		return 0, false
	}
}
