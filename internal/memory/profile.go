package memory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Profile is a free-form attribute mapping, either flat or nested per named
// person (for example {"lisa": {"diet": "vegetarian"}}).
type Profile map[string]any

// Person returns the attributes for name when the profile is nested by
// person, otherwise the profile itself.
func (p Profile) Person(name string) map[string]any {
	key := strings.ToLower(strings.TrimSpace(name))
	for k, v := range p {
		if strings.ToLower(k) != key {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			return nested
		}
	}
	return p
}

// Text returns the attribute for key on the named person flattened to
// lower-case text. Lists are joined with spaces.
func (p Profile) Text(person, key string) string {
	v, ok := p.Person(person)[key]
	if !ok || v == nil {
		return ""
	}
	return strings.ToLower(flatten(v))
}

// JSON renders the profile indented, always as a valid object.
func (p Profile) JSON() string {
	if p == nil {
		p = Profile{}
	}
	raw, err := json.MarshalIndent(map[string]any(p), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func flatten(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, flatten(item))
		}
		return strings.Join(parts, " ")
	case map[string]any:
		parts := make([]string, 0, len(t))
		for k, item := range t {
			parts = append(parts, k+" "+flatten(item))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(t)
	}
}
