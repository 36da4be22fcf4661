package module

// Config is a module's settings block as loaded from configuration. The
// typed getters tolerate the numeric widening JSON and YAML decoders
// apply, and return the given default when the key is absent or the
// value has the wrong type.
type Config map[string]any

// GetString returns the string at key or def.
func (c Config) GetString(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// GetInt returns the integer at key or def. JSON decodes numbers as
// float64 and YAML as int; both are accepted.
func (c Config) GetInt(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// GetFloat returns the float at key or def.
func (c Config) GetFloat(key string, def float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// GetBool returns the bool at key or def.
func (c Config) GetBool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// GetIntSlice returns the int slice at key or def, accepting the []any
// form decoders produce.
func (c Config) GetIntSlice(key string, def []int) []int {
	raw, ok := c[key].([]any)
	if !ok {
		return def
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case int:
			out = append(out, v)
		case int64:
			out = append(out, int(v))
		case float64:
			out = append(out, int(v))
		default:
			return def
		}
	}
	return out
}
