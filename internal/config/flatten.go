package config

import (
	"reflect"
	"sort"
	"strings"
	"sync"
)

// fieldKeys walks Config by its yaml tags and records every dot-separated
// leaf key, plus the subset tagged secret:"true".
var fieldKeys = sync.OnceValues(func() (map[string]bool, map[string]bool) {
	known := make(map[string]bool)
	secret := make(map[string]bool)
	walkFields("", reflect.TypeOf(Config{}), known, secret)
	return known, secret
})

func walkFields(prefix string, t reflect.Type, known, secret map[string]bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			walkFields(name, f.Type, known, secret)
			continue
		}
		known[name] = true
		if f.Tag.Get("secret") == "true" {
			secret[name] = true
		}
	}
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	_, secret := fieldKeys()
	return secret[key]
}

// IsKnownKey reports whether key names a Config field.
func IsKnownKey(key string) bool {
	known, _ := fieldKeys()
	return known[key]
}

// Keys lists every settable key in sorted order.
func Keys() []string {
	known, _ := fieldKeys()
	out := make([]string, 0, len(known))
	for k := range known {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Flatten turns nested YAML maps into dot-separated keys. Lists such as
// destinations and schedules stay whole.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. A scalar sitting where a section is
// needed is replaced by the section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		node := out
		parts := strings.Split(k, ".")
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = v
	}
	return out
}

// MaskSecrets hides credential values, keeping their last four characters
// so an operator can tell tokens apart.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if s, ok := v.(string); ok && s != "" && IsSecretKey(k) {
			v = maskSecret(s)
		}
		out[k] = v
	}
	return out
}

func maskSecret(s string) string {
	r := []rune(s)
	if len(r) > 4 {
		r = r[len(r)-4:]
	}
	return "***" + string(r)
}
