package core

import "strings"

const RedactedValue = "[REDACTED]"

// Redactor masks credential-like values in audit metadata and error details.
// Keys matching a Mask fragment are replaced unless listed in Keep.
type Redactor struct {
	Mask []string
	Keep map[string]bool
}

var defaultRedactor = Redactor{
	Mask: []string{
		"password", "secret", "token", "authorization", "api_key",
		"apikey", "access_key", "credential", "signature", "cookie",
	},
	Keep: map[string]bool{
		"tenant_id":           true,
		"request_id":          true,
		"trace_id":            true,
		"flow_id":             true,
		"dedup_key":           true,
		"idempotency_key":     true,
		"raw_event_id":        true,
		"normalized_event_id": true,
		"customer_id":         true,
		"quote_id":            true,
		"action_id":           true,
	},
}

// RedactSensitiveMap copies metadata with the default Redactor. The result is
// never nil.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	return defaultRedactor.Map(metadata)
}

func (r Redactor) Map(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		if r.masks(key) {
			out[key] = RedactedValue
		} else {
			out[key] = r.value(value)
		}
	}
	return out
}

func (r Redactor) value(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return r.Map(v)
	case map[string]string:
		widened := make(map[string]any, len(v))
		for key, item := range v {
			widened[key] = item
		}
		return r.Map(widened)
	case []any:
		items := make([]any, 0, len(v))
		for _, item := range v {
			items = append(items, r.value(item))
		}
		return items
	}
	return value
}

func (r Redactor) masks(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || r.Keep[key] {
		return false
	}
	for _, fragment := range r.Mask {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}
