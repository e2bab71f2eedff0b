package nodeconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// LoadSecretsYAML parses the flat name->value secrets document.
func LoadSecretsYAML(data []byte) (Secrets, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse secrets yaml: %w", err)
	}
	return Secrets(raw), nil
}
