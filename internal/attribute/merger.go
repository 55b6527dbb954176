package attribute

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/resource"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
	"github.com/hupe1980/indexmerge/taskres"
)

// Merge parameter keys.
const (
	// ParamDocMapperName names the doc mapper task resource. Required.
	ParamDocMapperName = "docmapper_name"
	// ParamMergeSwitchMemoryLimit bounds the bytes of open source readers
	// of a variable-length merge.
	ParamMergeSwitchMemoryLimit = "merge_switch_memory_limit"
)

// DefaultMergeSwitchMemoryLimit is used when ParamMergeSwitchMemoryLimit
// is not set.
const DefaultMergeSwitchMemoryLimit = 256 << 20

// Merger merges one attribute of the source segments into the targets.
type Merger interface {
	Init(cfg *config.AttributeConfig, params map[string]string) error
	// SetPatchInfos supplies the patch files of all segments. Without it
	// Merge scans the source segments.
	SetPatchInfos(infos PatchInfos)
	Merge(ctx context.Context, infos *segment.MergeInfos, res *taskres.Manager) error
	EstimateMemoryUse(infos *segment.MergeInfos) int64
}

// Options are shared by all attribute mergers.
type Options struct {
	Logger   *slog.Logger
	Resource *resource.Controller
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// typedMerger is the type-specific half of a merger.
type typedMerger interface {
	openIndexer(ctx context.Context, seg segment.Segment) (Indexer, error)
	doMerge(ctx context.Context, infos *segment.MergeInfos, mapper docmapper.DocMapper, indexers []Indexer, outDirs []blobstore.Dir) error
}

// baseMerger drives a merge: patches, doc mapper, output directories,
// slice info and carried-forward patch files.
type baseMerger struct {
	opts Options
	cfg  *config.AttributeConfig

	docMapperName  string
	memLimit       int64
	needMergePatch bool
	patchInfos     PatchInfos
}

func (m *baseMerger) Init(cfg *config.AttributeConfig, params map[string]string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	name, ok := params[ParamDocMapperName]
	if !ok || name == "" {
		return status.Corruptionf("attribute %s: no doc mapper resource in merge params", cfg.Name)
	}
	m.memLimit = DefaultMergeSwitchMemoryLimit
	if s, ok := params[ParamMergeSwitchMemoryLimit]; ok {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v <= 0 {
			return status.InvalidArgsf("attribute %s: bad %s %q", cfg.Name, ParamMergeSwitchMemoryLimit, s)
		}
		m.memLimit = v
	}
	m.cfg = cfg
	m.docMapperName = name
	// Only one writer of a sliced attribute carries patch files forward.
	m.needMergePatch = cfg.Updatable && (!cfg.IsSliced() || cfg.SliceIdx == 0)
	return nil
}

func (m *baseMerger) SetPatchInfos(infos PatchInfos) { m.patchInfos = infos }

func (m *baseMerger) merge(ctx context.Context, infos *segment.MergeInfos, res *taskres.Manager, impl typedMerger) error {
	if m.cfg == nil {
		return status.InvalidArgsf("attribute merger is not initialized")
	}
	if err := infos.Validate(); err != nil {
		return err
	}
	start := time.Now()
	log := m.opts.logger().With("index", m.cfg.Name, "type", segment.KindAttribute)
	log.InfoContext(ctx, "merge attribute started", "segments", infos.String(), "slice", m.cfg.SliceIdx)

	mapper, err := res.LoadDocMapper(ctx, m.docMapperName)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return status.Corruptionf("attribute %s: doc mapper %s: %v", m.cfg.Name, m.docMapperName, err)
		}
		return err
	}

	indexers, err := m.openIndexers(ctx, infos, impl)
	defer func() {
		for _, ix := range indexers {
			_ = ix.Close()
		}
	}()
	if err != nil {
		return err
	}
	if err := m.loadPatchReaders(ctx, infos, indexers); err != nil {
		return err
	}

	outDirs, err := m.createOutputDirectory(ctx, infos)
	if err != nil {
		return err
	}
	if err := impl.doMerge(ctx, infos, mapper, indexers, outDirs); err != nil {
		return err
	}
	if m.cfg.IsSliced() && m.cfg.SliceIdx == 0 {
		for _, t := range infos.TargetSegments {
			info := SliceInfo{SliceCount: m.cfg.SliceCount, DocCount: mapper.GetTargetSegmentDocCount(t.ID)}
			if err := StoreSliceInfo(ctx, m.attributeDir(t), info); err != nil {
				return err
			}
		}
	}
	if m.needMergePatch {
		last := infos.TargetSegments[len(infos.TargetSegments)-1]
		n, err := PatchFileMerger{}.Merge(ctx, infos, m.patchInfos, m.attributeDir(last))
		if err != nil {
			return err
		}
		if n > 0 {
			log.DebugContext(ctx, "carried patch files forward", "files", n, "target", last.ID)
		}
	}
	log.InfoContext(ctx, "merge attribute finished", "docs", mapper.GetNewDocCount(), "duration", time.Since(start))
	return nil
}

func (m *baseMerger) openIndexers(ctx context.Context, infos *segment.MergeInfos, impl typedMerger) ([]Indexer, error) {
	indexers := make([]Indexer, 0, len(infos.SrcSegments))
	for _, src := range infos.SrcSegments {
		ix, err := impl.openIndexer(ctx, src.Segment)
		if err != nil {
			return indexers, err
		}
		if ix == nil {
			return indexers, status.Corruptionf("attribute %s: no indexer for segment %d", m.cfg.Name, src.ID())
		}
		indexers = append(indexers, ix)
	}
	return indexers, nil
}

// loadPatchReaders attaches the pending patches of every source segment to
// its indexer.
func (m *baseMerger) loadPatchReaders(ctx context.Context, infos *segment.MergeInfos, indexers []Indexer) error {
	if !m.cfg.Updatable {
		return nil
	}
	if m.patchInfos == nil {
		segs := make([]segment.Segment, len(infos.SrcSegments))
		for i, src := range infos.SrcSegments {
			segs[i] = src.Segment
		}
		all, err := ScanPatchInfos(ctx, segs, m.cfg.Name)
		if err != nil {
			return err
		}
		m.patchInfos = all
	}
	for i, src := range infos.SrcSegments {
		files := m.patchInfos[src.ID()]
		if len(files) == 0 {
			continue
		}
		r, err := NewPatchReader(ctx, files)
		if err != nil {
			return err
		}
		indexers[i].SetPatchReader(r)
	}
	return nil
}

func (m *baseMerger) attributeDir(t segment.Meta) blobstore.Dir {
	return segment.AttributeDirOf(t.Dir, m.cfg.Name, 1, 0)
}

// createOutputDirectory removes the output of a previous attempt and
// returns the directory this merger writes in each target.
func (m *baseMerger) createOutputDirectory(ctx context.Context, infos *segment.MergeInfos) ([]blobstore.Dir, error) {
	dirs := make([]blobstore.Dir, len(infos.TargetSegments))
	for i, t := range infos.TargetSegments {
		dir := segment.AttributeDirOf(t.Dir, m.cfg.Name, m.cfg.SliceCount, m.cfg.SliceIdx)
		if err := dir.RemoveAll(ctx); err != nil {
			return nil, status.IOError(err, "clean %s", dir)
		}
		dirs[i] = dir
	}
	return dirs, nil
}
