package summary

import (
	"context"
	"errors"
	"log/slog"
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
	// ParamGroupName selects the group to merge. Defaults to the default
	// group.
	ParamGroupName = "summary_group_name"
)

type Options struct {
	Logger   *slog.Logger
	Resource *resource.Controller
}

// Merger merges one summary group of segments on a local or remote disk.
type Merger struct {
	opts          Options
	group         *config.SummaryGroupConfig
	docMapperName string
	written       uint64
}

func NewMerger(opts Options) *Merger {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Merger{opts: opts}
}

func (m *Merger) Init(cfg *config.SummaryConfig, params map[string]string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	name := params[ParamDocMapperName]
	if name == "" {
		return status.Corruptionf("summary: no doc mapper resource in merge params")
	}
	group := params[ParamGroupName]
	if group == "" {
		group = config.DefaultSummaryGroup
	}
	m.group = nil
	if cfg != nil {
		for i := range cfg.Groups {
			if cfg.Groups[i].Name == group {
				m.group = &cfg.Groups[i]
			}
		}
	}
	if m.group == nil {
		return status.InvalidArgsf("summary: unknown group %q", group)
	}
	m.docMapperName = name
	return nil
}

// Group returns the merged group.
func (m *Merger) Group() *config.SummaryGroupConfig { return m.group }

func (m *Merger) dirMerge() varlen.DirMerge {
	return varlen.DirMerge{
		Param:    ParamForSummary(m.group),
		Logger:   m.opts.Logger,
		Resource: m.opts.Resource,
		SourceDir: func(src segment.SourceSegment) blobstore.Dir {
			return GroupDir(src.Directory(), m.group)
		},
		TargetDir: func(t segment.Meta) blobstore.Dir {
			return GroupDir(t.Dir, m.group)
		},
	}
}

func (m *Merger) Merge(ctx context.Context, infos *segment.MergeInfos, res *taskres.Manager) error {
	if m.group == nil {
		return status.InvalidArgsf("summary merger is not initialized")
	}
	if err := infos.Validate(); err != nil {
		return err
	}
	for _, src := range infos.SrcSegments {
		if !src.HasIndex(segment.KindSummary, "") {
			return status.Corruptionf("summary: segment %d has no summary index", src.ID())
		}
	}
	mapper, err := res.LoadDocMapper(ctx, m.docMapperName)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return status.Corruptionf("summary: doc mapper %s: %v", m.docMapperName, err)
		}
		return err
	}

	start := time.Now()
	log := m.opts.Logger.With("index", segment.KindSummary, "group", m.group.Name)
	log.InfoContext(ctx, "merge summary started", "segments", infos.String())
	stats, err := m.dirMerge().Run(ctx, infos, mapper)
	if err != nil {
		return err
	}
	m.written = 0
	for _, s := range stats {
		m.written += s.DataLength
	}
	log.InfoContext(ctx, "merge summary finished", "docs", mapper.GetNewDocCount(), "bytes", m.written, "duration", time.Since(start))
	return nil
}

// BytesWritten returns the uncompressed data bytes of the last Merge.
func (m *Merger) BytesWritten() uint64 { return m.written }

func (m *Merger) EstimateMemoryUse(infos *segment.MergeInfos) int64 {
	if m.group == nil {
		return 0
	}
	return m.dirMerge().EstimateMemoryUse(infos)
}
