package masking

import "strings"

const redacted = "****"

// MaskSecret hides a credential while keeping its key prefix and last
// four characters so audit entries stay correlatable.
func MaskSecret(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}

	prefix := ""
	if i := strings.LastIndex(v, "_"); i >= 0 && i < len(v)-1 {
		prefix, v = v[:i+1], v[i+1:]
	}
	if len(v) <= 4 {
		return prefix + redacted
	}
	return prefix + redacted + v[len(v)-4:]
}

// MaskJSON returns a copy of the metadata with every string value
// masked. Blank keys are dropped; an empty result is nil.
func MaskJSON(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		out[k] = maskAny(value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func maskAny(value any) any {
	switch v := value.(type) {
	case string:
		return MaskSecret(v)
	case map[string]any:
		return MaskJSON(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = maskAny(item)
		}
		return items
	}
	return value
}
