package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID represents a JSON-RPC ID that can be either a string or a number.
// A nil *RequestID marshals as JSON null, which is what a response carries
// when the inbound id could not be determined.
type RequestID struct {
	value any
}

// NewRequestID creates a RequestID from a string or an integer.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string, int64, float64:
		return &RequestID{value: v}
	case int:
		return &RequestID{value: int64(v)}
	default:
		return nil
	}
}

// String returns the string representation of the ID.
func (id *RequestID) String() string {
	if id == nil || id.value == nil {
		return ""
	}
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Value returns the underlying value.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		id.value = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("jsonrpc: invalid string id %s: %w", data, err)
		}
		id.value = str
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		if i, err := num.Int64(); err == nil {
			id.value = i
			return nil
		}
		f, err := num.Float64()
		if err != nil {
			return fmt.Errorf("jsonrpc: invalid numeric id %s: %w", data, err)
		}
		id.value = f
		return nil
	}

	return fmt.Errorf("jsonrpc: id must be a string or number, got: %s", string(data))
}
