package sqllake

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// NormalizeValue converts a driver value into something encoding/json can
// always render. Non-finite floats become strings and raw UUID bytes become
// their canonical form.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return v
	case float32:
		return normalizeFloat(float64(x), v)
	case float64:
		return normalizeFloat(x, v)
	case time.Time:
		return x
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return x
	case json.Marshaler:
		return v
	case fmt.Stringer:
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = NormalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = NormalizeValue(e)
		}
		return out
	}
	if _, err := json.Marshal(v); err != nil {
		return stringify(v)
	}
	return v
}

func normalizeFloat(f float64, orig any) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprint(f)
	}
	return orig
}

func stringify(v any) string {
	return fmt.Sprint(v)
}
