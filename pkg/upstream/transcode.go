package upstream

import (
	"reflect"
	"strings"
)

// TranscodeParams rewrites every key in params from camelCase to the
// upstream snake_case convention. The input is never mutated; the result
// has the same nesting shape with byte-identical values. Entries holding a
// nil pointer (an absent optional field) are dropped entirely, while
// literal JSON nulls are preserved. Nested objects are transcoded
// recursively and arrays element-wise.
func TranscodeParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		if isAbsent(value) {
			continue
		}
		out[snakeCase(key)] = transcodeValue(value)
	}
	return out
}

func transcodeValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return TranscodeParams(typed)
	case []any:
		out := make([]any, len(typed))
		for i, element := range typed {
			out[i] = transcodeValue(element)
		}
		return out
	case []map[string]any:
		out := make([]any, len(typed))
		for i, element := range typed {
			out[i] = TranscodeParams(element)
		}
		return out
	default:
		return value
	}
}

// isAbsent reports whether value represents an omitted optional field. A
// typed nil pointer stored in an interface is non-nil, so an explicit
// reflection check is required; untyped nil (JSON null) stays present.
func isAbsent(value any) bool {
	if value == nil {
		return false
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// snakeCase lowers ASCII uppercase letters, prefixing each with an
// underscore. Digits, underscores and already-lowercase input pass
// through unchanged, so the transform is idempotent.
func snakeCase(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'A' && c <= 'Z' {
			b.WriteByte('_')
			b.WriteByte(c - 'A' + 'a')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
