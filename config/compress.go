package config

import (
	"github.com/hupe1980/indexmerge/internal/compress"
	"github.com/hupe1980/indexmerge/status"
)

// FileCompressConfig selects block compression for a data file.
type FileCompressConfig struct {
	// Compressor is one of snappy, lz4, lz4hc, zlib, zstd. Empty disables
	// compression.
	Compressor string `json:"compressor" yaml:"compressor"`
	// BufferSize is the uncompressed block size. Must be a power of two.
	BufferSize int `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
	// Level is passed to compressors that take one.
	Level int `json:"level,omitempty" yaml:"level,omitempty"`
}

// Enabled reports whether a compressor is configured.
func (c *FileCompressConfig) Enabled() bool {
	return c != nil && c.Compressor != ""
}

// BlockSize returns BufferSize or the default.
func (c *FileCompressConfig) BlockSize() int {
	if c == nil || c.BufferSize == 0 {
		return compress.DefaultBufferSize
	}
	return c.BufferSize
}

// Validate checks the compressor name and buffer size.
func (c *FileCompressConfig) Validate() error {
	if c == nil {
		return nil
	}
	if !compress.Supported(c.Compressor) {
		return status.InvalidArgsf("unsupported compressor %q", c.Compressor)
	}
	if c.BufferSize != 0 && !compress.IsPowerOfTwo(c.BufferSize) {
		return status.InvalidArgsf("compress buffer size %d is not a power of two", c.BufferSize)
	}
	return nil
}
