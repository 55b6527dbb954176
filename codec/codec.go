// Package codec encodes the small metadata records written next to merged
// columns (data info, slice info, segment info) and the configuration files
// read at the boundary.
//
// Persisted records always use Default. Configuration files are decoded by
// file extension through ForFile.
package codec

import (
	"fmt"
	"path"
	"strings"
)

// Codec encodes and decodes values. Implementations are safe for concurrent
// use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	case "yaml":
		return YAML{}, true
	default:
		return nil, false
	}
}

// ForFile picks a codec from the extension of file: YAML for .yaml and .yml,
// Default otherwise.
func ForFile(file string) Codec {
	switch strings.ToLower(path.Ext(file)) {
	case ".yaml", ".yml":
		return YAML{}
	default:
		return Default
	}
}

// MustMarshal panics on error. For tests and constant records.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}

// Default is the codec for persisted metadata records.
var Default Codec = GoJSON{}
