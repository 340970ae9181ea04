package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a JSON-RPC id: a string, an integer or a float. The zero
// value and a nil *RequestID both mean "no id".
type RequestID struct {
	value any
}

// NewRequestID wraps a string or numeric id. Any other type yields a
// nil-valued ID.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string, int64, float64:
		return &RequestID{value: v}
	case int:
		return &RequestID{value: int64(v)}
	case int32:
		return &RequestID{value: int64(v)}
	case uint32:
		return &RequestID{value: int64(v)}
	case float32:
		return &RequestID{value: float64(v)}
	default:
		return &RequestID{}
	}
}

// String renders the id for logs. Nil ids render as "".
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprint(id.value)
}

// Value returns the wrapped string, int64 or float64.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// IsNil reports whether the id is absent.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts a JSON string or number. Integral numbers are kept
// as int64 so they echo back without a fractional part.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		id.value = v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			id.value = n
			return nil
		}
		f, err := v.Float64()
		if err != nil {
			return fmt.Errorf("JSON-RPC ID %s out of range: %w", v, err)
		}
		id.value = f
	default:
		return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", data)
	}
	return nil
}
