package config

import "github.com/hupe1980/indexmerge/status"

// Field modes of a source group.
const (
	FieldModeAll       = "all_field"
	FieldModeSpecified = "specified_field"
	FieldModeUser      = "user_define"
)

// SourceGroupConfig describes one source group.
type SourceGroupConfig struct {
	ID           int                 `json:"group_id" yaml:"group_id"`
	FieldMode    string              `json:"field_mode,omitempty" yaml:"field_mode,omitempty"`
	Fields       []string            `json:"fields,omitempty" yaml:"fields,omitempty"`
	FileCompress *FileCompressConfig `json:"file_compress,omitempty" yaml:"file_compress,omitempty"`
}

// SourceConfig lists the source groups. Groups are merged independently and
// the meta column is merged as group len(Groups).
type SourceConfig struct {
	Groups []SourceGroupConfig `json:"groups" yaml:"groups"`
	// MetaCompress compresses the source meta data file.
	MetaCompress *FileCompressConfig `json:"meta_compress,omitempty" yaml:"meta_compress,omitempty"`
}

// GroupCount returns the number of data groups.
func (c *SourceConfig) GroupCount() int {
	if c == nil {
		return 0
	}
	return len(c.Groups)
}

// Validate checks group ids are 0..n-1 in order and field modes are known.
func (c *SourceConfig) Validate() error {
	if c == nil {
		return nil
	}
	for i, g := range c.Groups {
		if g.ID != i {
			return status.InvalidArgsf("source group %d has id %d", i, g.ID)
		}
		switch g.FieldMode {
		case "", FieldModeAll, FieldModeUser:
		case FieldModeSpecified:
			if len(g.Fields) == 0 {
				return status.InvalidArgsf("source group %d: specified_field without fields", g.ID)
			}
		default:
			return status.InvalidArgsf("source group %d: unknown field mode %q", g.ID, g.FieldMode)
		}
		if err := g.FileCompress.Validate(); err != nil {
			return err
		}
	}
	return c.MetaCompress.Validate()
}
