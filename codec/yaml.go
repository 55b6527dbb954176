package codec

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// YAML decodes configuration and plan files. Unknown fields are rejected.
type YAML struct{}

func (YAML) Marshal(v any) ([]byte, error) { return yaml.Marshal(v) }

func (YAML) Unmarshal(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

func (YAML) Name() string { return "yaml" }
