package config

import (
	"fmt"
	"os"

	"github.com/hupe1980/indexmerge/codec"
	"github.com/hupe1980/indexmerge/status"
)

// Schema is the merge-relevant part of an index schema.
type Schema struct {
	Name       string            `json:"table_name" yaml:"table_name"`
	Attributes []AttributeConfig `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Source     *SourceConfig     `json:"source,omitempty" yaml:"source,omitempty"`
	Summary    *SummaryConfig    `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Attribute returns the named attribute config.
func (s *Schema) Attribute(name string) (*AttributeConfig, bool) {
	for i := range s.Attributes {
		if s.Attributes[i].Name == name {
			return &s.Attributes[i], true
		}
	}
	return nil, false
}

// Validate checks every part of the schema.
func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.Attributes))
	for i := range s.Attributes {
		a := &s.Attributes[i]
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.Name] {
			return status.InvalidArgsf("duplicate attribute %q", a.Name)
		}
		seen[a.Name] = true
	}
	if err := s.Source.Validate(); err != nil {
		return err
	}
	return s.Summary.Validate()
}

// ParseSchema decodes and validates a schema with c.
func ParseSchema(data []byte, c codec.Codec) (*Schema, error) {
	var s Schema
	if err := c.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decode schema: %v", status.ErrInvalidArgs, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSchema reads a YAML or JSON schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, status.IOError(err, "read schema %s", path)
	}
	return ParseSchema(data, codec.ForFile(path))
}
