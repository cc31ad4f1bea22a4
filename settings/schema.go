package settings

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// Defaults is a schema: a mapping from setting key to its declared
// default value. It is fixed at Store construction and must not be
// mutated afterwards.
type Defaults map[string]interface{}

// ParseDefaults reads a schema from a YAML document whose top level
// is a mapping from setting key to default value.
func ParseDefaults(data []byte) (Defaults, error) {
	var raw map[string]interface{}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("could not parse defaults: %s", err.Error())
	}

	defaults := make(Defaults, len(raw))

	for key, value := range raw {
		defaults[key] = normalize(value)
	}

	return defaults, nil
}

// normalize rewrites yaml.v2's map[interface{}]interface{} values as
// string-keyed maps so that defaults compare cleanly with values
// read back from backends.
func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[interface{}]interface{}:
		items := make(map[string]interface{}, len(v))

		for key, item := range v {
			items[fmt.Sprintf("%v", key)] = normalize(item)
		}

		return items
	case []interface{}:
		for i := range v {
			v[i] = normalize(v[i])
		}

		return v
	}

	return value
}
