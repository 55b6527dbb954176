package source

import (
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/internal/varlen"
)

// Source items are large and uneven, so offsets are always adaptive and
// every item carries its length.
func baseParam(c *config.FileCompressConfig) varlen.Param {
	p := varlen.Param{
		EnableAdaptiveOffset: true,
		AppendDataItemLength: true,
	}
	if c.Enabled() {
		p.DataCompressor = c.Compressor
		p.CompressBufferSize = c.BlockSize()
		p.CompressLevel = c.Level
	}
	return p
}

// ParamForSourceData returns the column layout of a source group.
func ParamForSourceData(g *config.SourceGroupConfig) varlen.Param {
	return baseParam(g.FileCompress)
}

// ParamForSourceMeta returns the column layout of the source meta column.
func ParamForSourceMeta(cfg *config.SourceConfig) varlen.Param {
	return baseParam(cfg.MetaCompress)
}

// paramFor returns the layout of group id, or of the meta column.
func paramFor(cfg *config.SourceConfig, id int) varlen.Param {
	if id == cfg.GroupCount() {
		return ParamForSourceMeta(cfg)
	}
	return ParamForSourceData(&cfg.Groups[id])
}
