package config

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "DUOMARK_"

// EnvLoader overlays environment variables onto a Config.
//
// DUOMARK_PREVIEW_CACHE_SIZE sets preview.cache_size: the first word after
// the prefix names the section and the rest the setting. Top-level
// settings and aliases are listed in the mapping.
type EnvLoader struct {
	prefix  string
	mapping map[string]string
	skip    map[string]bool
}

// NewEnvLoader creates a loader for prefix, which should include the
// trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(prefix),
		skip:    map[string]bool{prefix + "CONFIG": true},
	}
}

func defaultEnvMapping(prefix string) map[string]string {
	return map[string]string{
		prefix + "MODE":      "mode",
		prefix + "LOG_LEVEL": "logging.level",
		prefix + "LOG_FILE":  "logging.file",
		prefix + "SCRIPT":    "preview.script",
	}
}

// AddMapping adds a custom environment variable mapping.
func (l *EnvLoader) AddMapping(envVar, path string) {
	l.mapping[envVar] = path
}

// Values returns the overrides found in environ as a nested map.
func (l *EnvLoader) Values(environ []string) map[string]any {
	values := make(map[string]any)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) || l.skip[name] {
			continue
		}
		path, ok := l.mapping[name]
		if !ok {
			path = l.envToPath(name)
		}
		if path == "" {
			continue
		}
		setByPath(values, path, parseValue(value))
	}
	return values
}

// Apply overlays the overrides in environ onto cfg.
func (l *EnvLoader) Apply(cfg *Config, environ []string) error {
	values := l.Values(environ)
	if len(values) == 0 {
		return nil
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding environment overrides: %w", err)
	}
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
		return parseError("environment", err)
	}
	return nil
}

// envToPath converts DUOMARK_PREVIEW_CACHE_SIZE to preview.cache_size.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.ToLower(strings.TrimPrefix(env, l.prefix))
	section, setting, ok := strings.Cut(name, "_")
	if !ok {
		return section
	}
	return section + "." + setting
}

// parseValue types a raw value so numbers and booleans decode into their
// fields. Everything else, durations included, stays a string.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
