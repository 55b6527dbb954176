package config

import (
	"strconv"
	"strings"

	"github.com/hupe1980/indexmerge/status"
)

// FieldType is the value type of an attribute.
type FieldType string

const (
	FieldInt8    FieldType = "int8"
	FieldUint8   FieldType = "uint8"
	FieldInt16   FieldType = "int16"
	FieldUint16  FieldType = "uint16"
	FieldInt32   FieldType = "int32"
	FieldUint32  FieldType = "uint32"
	FieldInt64   FieldType = "int64"
	FieldUint64  FieldType = "uint64"
	FieldFloat32 FieldType = "float"
	FieldFloat64 FieldType = "double"
	FieldString  FieldType = "string"
)

// FixedSize returns the encoded width of one value, or 0 for strings.
func (t FieldType) FixedSize() int {
	switch t {
	case FieldInt8, FieldUint8:
		return 1
	case FieldInt16, FieldUint16:
		return 2
	case FieldInt32, FieldUint32, FieldFloat32:
		return 4
	case FieldInt64, FieldUint64, FieldFloat64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether t is a known type.
func (t FieldType) Valid() bool {
	return t == FieldString || t.FixedSize() > 0
}

// Compress type flags.
const (
	CompressUniq  = "uniq"
	CompressEqual = "equal"
)

// DefaultOffsetThreshold is the data size above which adaptive offsets
// switch from 4 to 8 bytes.
const DefaultOffsetThreshold = 0xFFFFFFFF

// AttributeConfig describes one attribute column.
type AttributeConfig struct {
	Name       string    `json:"name" yaml:"name"`
	FieldType  FieldType `json:"field_type" yaml:"field_type"`
	MultiValue bool      `json:"multi_value,omitempty" yaml:"multi_value,omitempty"`
	Updatable  bool      `json:"updatable,omitempty" yaml:"updatable,omitempty"`
	Nullable   bool      `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	// CompressType lists flags separated by '|', e.g. "uniq|equal".
	CompressType string `json:"compress_type,omitempty" yaml:"compress_type,omitempty"`
	// DefaultValue is used for segments built before the attribute existed.
	DefaultValue string `json:"default_value,omitempty" yaml:"default_value,omitempty"`

	// SliceCount splits the merge output of a single-value attribute across
	// SliceCount writers. SliceIdx selects the slice this config writes.
	SliceCount int `json:"slice_count,omitempty" yaml:"slice_count,omitempty"`
	SliceIdx   int `json:"slice_idx,omitempty" yaml:"slice_idx,omitempty"`

	OffsetThreshold uint64              `json:"u32offset_threshold,omitempty" yaml:"u32offset_threshold,omitempty"`
	FileCompress    *FileCompressConfig `json:"file_compress,omitempty" yaml:"file_compress,omitempty"`
}

func (c *AttributeConfig) hasCompressFlag(flag string) bool {
	for _, f := range strings.Split(c.CompressType, "|") {
		if strings.TrimSpace(f) == flag {
			return true
		}
	}
	return false
}

// IsUniqEncode reports whether variable-length values are deduplicated.
func (c *AttributeConfig) IsUniqEncode() bool { return c.hasCompressFlag(CompressUniq) }

// IsEqualCompress reports whether offsets or fixed values are equal-value
// compressed.
func (c *AttributeConfig) IsEqualCompress() bool { return c.hasCompressFlag(CompressEqual) }

// IsLengthFixed reports whether values are stored in a fixed-width column.
func (c *AttributeConfig) IsLengthFixed() bool {
	return !c.MultiValue && c.FieldType != FieldString
}

// IsSliced reports whether the attribute output is split into slices.
func (c *AttributeConfig) IsSliced() bool { return c.SliceCount > 1 }

// Threshold returns OffsetThreshold or the default.
func (c *AttributeConfig) Threshold() uint64 {
	if c.OffsetThreshold == 0 {
		return DefaultOffsetThreshold
	}
	return min(c.OffsetThreshold, DefaultOffsetThreshold)
}

// WithSlice returns a copy configured for slice idx.
func (c AttributeConfig) WithSlice(idx int) AttributeConfig {
	c.SliceIdx = idx
	return c
}

// Validate checks the attribute definition.
func (c *AttributeConfig) Validate() error {
	if c.Name == "" {
		return status.InvalidArgsf("attribute name is empty")
	}
	if !c.FieldType.Valid() {
		return status.InvalidArgsf("attribute %s: unknown field type %q", c.Name, c.FieldType)
	}
	for _, f := range strings.Split(c.CompressType, "|") {
		switch strings.TrimSpace(f) {
		case "", CompressUniq, CompressEqual:
		default:
			return status.InvalidArgsf("attribute %s: unknown compress type %q", c.Name, f)
		}
	}
	if c.IsUniqEncode() && c.IsLengthFixed() {
		return status.InvalidArgsf("attribute %s: uniq encode requires a variable length attribute", c.Name)
	}
	if c.SliceCount < 0 || c.SliceIdx < 0 || (c.SliceCount > 0 && c.SliceIdx >= c.SliceCount) {
		return status.InvalidArgsf("attribute %s: slice %d out of %d", c.Name, c.SliceIdx, c.SliceCount)
	}
	if c.Nullable && !c.IsLengthFixed() {
		return status.InvalidArgsf("attribute %s: only single-value attributes can be nullable", c.Name)
	}
	if c.IsSliced() && !c.IsLengthFixed() {
		return status.InvalidArgsf("attribute %s: only single-value attributes can be sliced", c.Name)
	}
	if c.OffsetThreshold > DefaultOffsetThreshold {
		return status.InvalidArgsf("attribute %s: u32offset_threshold %d exceeds %d", c.Name, c.OffsetThreshold, uint64(DefaultOffsetThreshold))
	}
	if c.DefaultValue != "" && c.IsLengthFixed() {
		if err := c.checkDefault(); err != nil {
			return err
		}
	}
	if err := c.FileCompress.Validate(); err != nil {
		return err
	}
	return nil
}

func (c *AttributeConfig) checkDefault() error {
	var err error
	switch c.FieldType {
	case FieldFloat32, FieldFloat64:
		_, err = strconv.ParseFloat(c.DefaultValue, 64)
	case FieldUint8, FieldUint16, FieldUint32, FieldUint64:
		_, err = strconv.ParseUint(c.DefaultValue, 10, c.FieldType.FixedSize()*8)
	default:
		_, err = strconv.ParseInt(c.DefaultValue, 10, c.FieldType.FixedSize()*8)
	}
	if err != nil {
		return status.InvalidArgsf("attribute %s: bad default value %q", c.Name, c.DefaultValue)
	}
	return nil
}
