package varlen

import (
	"context"
	"log/slog"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/resource"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// DirMerge merges a column kept as OffsetFile and DataFile in one
// directory per segment.
type DirMerge struct {
	Param  Param
	Logger *slog.Logger
	// Resource rate limits the output writers. May be nil.
	Resource *resource.Controller
	// SourceDir returns the column directory of a source segment.
	SourceDir func(src segment.SourceSegment) blobstore.Dir
	// TargetDir returns the column directory of a target segment. Column
	// files left there by an earlier attempt are removed first; other
	// files are kept, since column directories may nest.
	TargetDir func(t segment.Meta) blobstore.Dir
}

// ColumnStats describes a merged column.
type ColumnStats struct {
	Dir           blobstore.Dir
	DocCount      int
	DataItemCount uint32
	MaxItemLen    uint32
	DataLength    uint64
}

// Run merges all source columns. Sources are opened together and closed
// before Run returns.
func (d DirMerge) Run(ctx context.Context, infos *segment.MergeInfos, mapper docmapper.DocMapper) ([]ColumnStats, error) {
	if d.SourceDir == nil || d.TargetDir == nil {
		return nil, status.InvalidArgsf("dir merge without source or target directories")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	inputs := make([]Input, 0, len(infos.SrcSegments))
	defer func() {
		for _, in := range inputs {
			_ = in.Reader.(*Reader).Close()
		}
	}()
	for _, src := range infos.SrcSegments {
		r, err := Open(ctx, d.SourceDir(src), segment.OffsetFile, segment.DataFile, d.Param)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, Input{Reader: r})
		if r.DocCount() != src.DocCount() {
			return nil, status.Corruptionf("%s: %d values for %d docs", d.SourceDir(src), r.DocCount(), src.DocCount())
		}
	}

	dirs := make([]blobstore.Dir, len(infos.TargetSegments))
	writers := make([]*Writer, 0, len(infos.TargetSegments))
	closeAll := func() {
		for _, w := range writers {
			_ = w.Close()
		}
	}
	for i, t := range infos.TargetSegments {
		dirs[i] = d.TargetDir(t)
		if err := removeColumn(ctx, dirs[i]); err != nil {
			closeAll()
			return nil, err
		}
		w := NewWriter(WithResourceController(d.Resource))
		if err := w.Init(ctx, dirs[i], segment.OffsetFile, segment.DataFile, d.Param); err != nil {
			closeAll()
			return nil, err
		}
		writers = append(writers, w)
	}

	m := NewMerger(d.Param, WithLogger(logger))
	if err := m.Init(infos, mapper, inputs, writers); err != nil {
		closeAll()
		return nil, err
	}
	if err := m.Merge(ctx); err != nil {
		return nil, err
	}

	stats := make([]ColumnStats, len(writers))
	for i, w := range writers {
		stats[i] = ColumnStats{
			Dir:           dirs[i],
			DocCount:      w.OffsetCount(),
			DataItemCount: w.DataItemCount(),
			MaxItemLen:    w.MaxItemLen(),
			DataLength:    w.DataLength(),
		}
	}
	return stats, nil
}

func removeColumn(ctx context.Context, dir blobstore.Dir) error {
	for _, f := range []string{segment.OffsetFile, segment.DataFile} {
		if err := dir.Delete(ctx, f); err != nil && !blobstore.IsNotFound(err) {
			return status.IOError(err, "remove %s in %s", f, dir)
		}
	}
	return nil
}

// EstimateMemoryUse adds the offsets of the open source columns to
// EstimateMemoryUse.
func (d DirMerge) EstimateMemoryUse(infos *segment.MergeInfos) int64 {
	mem := EstimateMemoryUse(d.Param, infos.TotalDocCount())
	for _, src := range infos.SrcSegments {
		mem += int64(src.DocCount()+1) * 8
	}
	return mem
}
