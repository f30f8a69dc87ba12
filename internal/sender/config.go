package sender

import (
	"net/url"
	"strconv"
	"strings"
)

// Transport configs arrive as JSON maps, so numbers may be float64 and
// operators sometimes quote them. The helpers below normalize both.

func requireConfigString(config map[string]any, key string) (string, error) {
	value := configString(config, key)
	if value == "" {
		return "", ConfigErrorf("config field %q is required", key)
	}
	return value, nil
}

func requireConfigURL(config map[string]any, key string) (string, error) {
	value, err := requireConfigString(config, key)
	if err != nil {
		return "", err
	}
	if _, parseErr := url.ParseRequestURI(value); parseErr != nil {
		return "", ConfigErrorf("config field %q is not a valid url: %v", key, parseErr)
	}
	return value, nil
}

func requireConfigInt(config map[string]any, key string) (int, error) {
	if config == nil {
		return 0, ConfigErrorf("config field %q is required", key)
	}

	switch value := config[key].(type) {
	case int:
		return value, nil
	case float64:
		return int(value), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, ConfigErrorf("config field %q must be a number", key)
		}
		return parsed, nil
	case nil:
		return 0, ConfigErrorf("config field %q is required", key)
	default:
		return 0, ConfigErrorf("config field %q must be a number", key)
	}
}

func configString(config map[string]any, key string) string {
	if config == nil {
		return ""
	}
	value, ok := config[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func configStringMap(config map[string]any, key string) (map[string]string, error) {
	if config == nil || config[key] == nil {
		return nil, nil
	}

	raw, ok := config[key].(map[string]any)
	if !ok {
		return nil, ConfigErrorf("config field %q must be a string map", key)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, ConfigErrorf("config field %q has non-string value for %q", key, k)
		}
		out[k] = s
	}
	return out, nil
}
