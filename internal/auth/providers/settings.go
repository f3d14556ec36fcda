package providers

import "time"

// Lectura laxa de los settings crudos de la config: los valores llegan
// como any según el parser (YAML da int, JSON da float64).

func settingString(settings map[string]any, key, def string) string {
	if v, ok := settings[key].(string); ok && v != "" {
		return v
	}
	return def
}

func settingInt(settings map[string]any, key string, def int) int {
	switch v := settings[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func settingDuration(settings map[string]any, key string, def time.Duration) time.Duration {
	if v, ok := settings[key].(string); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
