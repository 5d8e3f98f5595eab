package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errNull = errors.New("value is null")

func lookup(raw RawReport, key string) (any, error) {
	v, ok := raw[key]
	if !ok {
		return nil, fmt.Errorf("missing key %q", key)
	}
	return v, nil
}

// toInt accepts JSON integers, whole or fractional JSON numbers (truncated)
// and decimal integer strings.
func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, errNull
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", x.String())
		}
		return truncFloat(f)
	case float64:
		return truncFloat(x)
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", x)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

func truncFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
		return 0, fmt.Errorf("integer out of range: %v", f)
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, errNull
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", x.String())
		}
		return f, nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

// toText renders a label value as the string used for code lookup.
func toText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("cannot convert %T to text", v)
	}
}

func requiredInt(raw RawReport, key string) (int64, error) {
	v, err := lookup(raw, key)
	if err != nil {
		return 0, err
	}
	i, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return i, nil
}

func requiredFloat(raw RawReport, key string) (float64, error) {
	v, err := lookup(raw, key)
	if err != nil {
		return 0, err
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return f, nil
}

func requiredText(raw RawReport, key string) (string, error) {
	v, err := lookup(raw, key)
	if err != nil {
		return "", err
	}
	s, err := toText(v)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", key, err)
	}
	return s, nil
}

func optionalInt(raw RawReport, key string) (*int, error) {
	v, err := lookup(raw, key)
	if err != nil || v == nil {
		return nil, err
	}
	i, err := toInt(v)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	n := int(i)
	return &n, nil
}

func optionalFloat(raw RawReport, key string) (*float64, error) {
	v, err := lookup(raw, key)
	if err != nil || v == nil {
		return nil, err
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	return &f, nil
}
