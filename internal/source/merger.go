package source

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/internal/varlen"
	"github.com/hupe1980/indexmerge/resource"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
	"github.com/hupe1980/indexmerge/taskres"
)

// Merge parameter keys.
const (
	ParamDocMapperName = "docmapper_name"
	// ParamGroupID selects the group to merge. The group count selects the
	// meta column.
	ParamGroupID = "source_group_id"
)

// Options configure a Merger.
type Options struct {
	Logger   *slog.Logger
	Resource *resource.Controller
}

// Merger merges one source group or the source meta column.
type Merger struct {
	opts          Options
	cfg           *config.SourceConfig
	groupID       int
	docMapperName string
	written       uint64
}

func NewMerger(opts Options) *Merger {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Merger{opts: opts}
}

func (m *Merger) Init(cfg *config.SourceConfig, params map[string]string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	name := params[ParamDocMapperName]
	if name == "" {
		return status.Corruptionf("source: no doc mapper resource in merge params")
	}
	s, ok := params[ParamGroupID]
	if !ok {
		return status.InvalidArgsf("source: no group id in merge params")
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 || id > cfg.GroupCount() {
		return status.InvalidArgsf("source: bad group id %q for %d groups", s, cfg.GroupCount())
	}
	m.cfg = cfg
	m.groupID = id
	m.docMapperName = name
	return nil
}

// IsMeta reports whether the merger handles the meta column.
func (m *Merger) IsMeta() bool { return m.groupID == m.cfg.GroupCount() }

func (m *Merger) dirMerge() varlen.DirMerge {
	n := m.cfg.GroupCount()
	return varlen.DirMerge{
		Param:    paramFor(m.cfg, m.groupID),
		Logger:   m.opts.Logger,
		Resource: m.opts.Resource,
		SourceDir: func(src segment.SourceSegment) blobstore.Dir {
			return segment.SourceGroupDirOf(src.Directory(), m.groupID, n)
		},
		TargetDir: func(t segment.Meta) blobstore.Dir {
			return segment.SourceGroupDirOf(t.Dir, m.groupID, n)
		},
	}
}

func (m *Merger) Merge(ctx context.Context, infos *segment.MergeInfos, res *taskres.Manager) error {
	if m.cfg == nil {
		return status.InvalidArgsf("source merger is not initialized")
	}
	if err := infos.Validate(); err != nil {
		return err
	}
	for _, src := range infos.SrcSegments {
		if !src.HasIndex(segment.KindSource, "") {
			return status.Corruptionf("source: segment %d has no source index", src.ID())
		}
	}
	mapper, err := res.LoadDocMapper(ctx, m.docMapperName)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return status.Corruptionf("source: doc mapper %s: %v", m.docMapperName, err)
		}
		return err
	}

	start := time.Now()
	log := m.opts.Logger.With("index", segment.KindSource, "group", m.groupID, "meta", m.IsMeta())
	log.InfoContext(ctx, "merge source started", "segments", infos.String())
	stats, err := m.dirMerge().Run(ctx, infos, mapper)
	if err != nil {
		return err
	}
	m.written = 0
	for _, s := range stats {
		m.written += s.DataLength
	}
	log.InfoContext(ctx, "merge source finished", "docs", mapper.GetNewDocCount(), "bytes", m.written, "duration", time.Since(start))
	return nil
}

// BytesWritten returns the uncompressed data bytes of the last Merge.
func (m *Merger) BytesWritten() uint64 { return m.written }

func (m *Merger) EstimateMemoryUse(infos *segment.MergeInfos) int64 {
	if m.cfg == nil {
		return 0
	}
	return m.dirMerge().EstimateMemoryUse(infos)
}
