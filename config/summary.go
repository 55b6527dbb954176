package config

import "github.com/hupe1980/indexmerge/status"

// DefaultSummaryGroup is the name of summary group 0, stored at the top of
// the summary directory.
const DefaultSummaryGroup = "default"

// SummaryGroupConfig describes one summary group.
type SummaryGroupConfig struct {
	Name   string   `json:"group_name" yaml:"group_name"`
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	// Compress enables zlib compression when FileCompress is not set.
	Compress       bool                `json:"compress,omitempty" yaml:"compress,omitempty"`
	FileCompress   *FileCompressConfig `json:"file_compress,omitempty" yaml:"file_compress,omitempty"`
	AdaptiveOffset bool                `json:"adaptive_offset,omitempty" yaml:"adaptive_offset,omitempty"`
	UniqEncode     bool                `json:"uniq_encode,omitempty" yaml:"uniq_encode,omitempty"`
}

// IsDefault reports whether g is the default group.
func (g *SummaryGroupConfig) IsDefault() bool { return g.Name == DefaultSummaryGroup }

// Compressor returns the effective file compression.
func (g *SummaryGroupConfig) Compressor() *FileCompressConfig {
	if g.FileCompress != nil {
		return g.FileCompress
	}
	if g.Compress {
		return &FileCompressConfig{Compressor: "zlib"}
	}
	return nil
}

// SummaryConfig lists summary groups. Group 0 must be the default group.
type SummaryConfig struct {
	Groups []SummaryGroupConfig `json:"groups" yaml:"groups"`
}

// Validate checks group names.
func (c *SummaryConfig) Validate() error {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool, len(c.Groups))
	for i, g := range c.Groups {
		if g.Name == "" {
			return status.InvalidArgsf("summary group %d has no name", i)
		}
		if (i == 0) != g.IsDefault() {
			return status.InvalidArgsf("summary group %q: the default group must come first", g.Name)
		}
		if seen[g.Name] {
			return status.InvalidArgsf("duplicate summary group %q", g.Name)
		}
		seen[g.Name] = true
		if err := g.Compressor().Validate(); err != nil {
			return err
		}
	}
	return nil
}
