package indexmerge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/internal/attribute"
	"github.com/hupe1980/indexmerge/internal/source"
	"github.com/hupe1980/indexmerge/internal/summary"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
	"github.com/hupe1980/indexmerge/taskres"
)

// Attribute merger extension points, re-exported for WithRegistry.
type (
	AttributeRegistry      = attribute.Registry
	AttributeMerger        = attribute.Merger
	AttributeMergerOptions = attribute.Options
	AttributeMergerFactory = attribute.Factory
	PatchInfos             = attribute.PatchInfos
)

// NewAttributeRegistry returns a registry of the built-in attribute types.
func NewAttributeRegistry() *AttributeRegistry { return attribute.NewRegistry() }

// Plan is one merge task: which segments to merge into which targets,
// under which schema.
type Plan struct {
	// Name tags log lines of the run.
	Name   string
	Schema *config.Schema
	Infos  *segment.MergeInfos
	// DocMapperName names the doc mapper in Resources.
	DocMapperName string
	Resources     *taskres.Manager
	// PatchInfos holds the patch files per updatable attribute. Attributes
	// without an entry scan their source segments.
	PatchInfos map[string]PatchInfos
	// MergeSwitchMemoryLimit overrides the open reader budget of
	// variable-length attributes by name.
	MergeSwitchMemoryLimit map[string]int64
}

// Validate checks that the plan is complete and consistent.
func (p *Plan) Validate() error {
	if p == nil {
		return status.InvalidArgsf("nil plan")
	}
	if p.Schema == nil {
		return status.InvalidArgsf("plan %q has no schema", p.Name)
	}
	if err := p.Schema.Validate(); err != nil {
		return err
	}
	if p.Infos == nil {
		return status.InvalidArgsf("plan %q has no segments", p.Name)
	}
	if err := p.Infos.Validate(); err != nil {
		return err
	}
	if p.DocMapperName == "" {
		return status.InvalidArgsf("plan %q has no doc mapper", p.Name)
	}
	if p.Resources == nil {
		return status.InvalidArgsf("plan %q has no task resources", p.Name)
	}
	return nil
}

// IndexResult describes one finished index merger.
type IndexResult struct {
	Name            string
	Kind            string
	EstimatedMemory int64
	Duration        time.Duration
	// BytesWritten is zero for mergers that do not report it.
	BytesWritten uint64
}

// TargetResult is the segment_info written for a target segment.
type TargetResult struct {
	SegmentID model.SegmentID
	DocCount  uint32
	Indexes   []string
}

// Result summarizes a successful Run.
type Result struct {
	Indexes []IndexResult
	Targets []TargetResult
	// EstimatedMemory is the sum over all mergers. Concurrent mergers
	// only ever hold a part of it.
	EstimatedMemory int64
	Duration        time.Duration
}

// indexMerger is the part of every merger the runner drives.
type indexMerger interface {
	Merge(ctx context.Context, infos *segment.MergeInfos, res *taskres.Manager) error
	EstimateMemoryUse(infos *segment.MergeInfos) int64
}

type task struct {
	kind     string
	name     string
	indexKey string
	merger   indexMerger
}

func (p *Plan) params(extra ...string) map[string]string {
	params := map[string]string{attribute.ParamDocMapperName: p.DocMapperName}
	for i := 0; i+1 < len(extra); i += 2 {
		params[extra[i]] = extra[i+1]
	}
	return params
}

// tasks builds and initializes one merger per attribute slice, per source
// group plus the source meta column and per summary group.
func (p *Plan) tasks(o *options) ([]task, error) {
	var tasks []task
	logger := o.logger.Logger

	for i := range p.Schema.Attributes {
		base := p.Schema.Attributes[i]
		slices := max(base.SliceCount, 1)
		for idx := range slices {
			cfg := base.WithSlice(idx)
			name := cfg.Name
			if cfg.IsSliced() {
				name = fmt.Sprintf("%s/%s", cfg.Name, segment.SliceDirName(idx))
			}
			m, err := o.registry.Create(&cfg, attribute.Options{Logger: logger, Resource: o.resource})
			if err != nil {
				return nil, err
			}
			params := p.params()
			limit := o.memLimit
			if v, ok := p.MergeSwitchMemoryLimit[cfg.Name]; ok {
				limit = v
			}
			if limit > 0 {
				params[attribute.ParamMergeSwitchMemoryLimit] = strconv.FormatInt(limit, 10)
			}
			if err := m.Init(&cfg, params); err != nil {
				return nil, err
			}
			if pi, ok := p.PatchInfos[cfg.Name]; ok {
				m.SetPatchInfos(pi)
			}
			tasks = append(tasks, task{
				kind:     segment.KindAttribute,
				name:     name,
				indexKey: segment.IndexKey(segment.KindAttribute, cfg.Name),
				merger:   m,
			})
		}
	}

	if src := p.Schema.Source; src != nil {
		n := src.GroupCount()
		for id := 0; id <= n; id++ {
			m := source.NewMerger(source.Options{Logger: logger, Resource: o.resource})
			if err := m.Init(src, p.params(source.ParamGroupID, strconv.Itoa(id))); err != nil {
				return nil, err
			}
			name := segment.SourceGroupDirName(id)
			if m.IsMeta() {
				name = segment.SourceMetaDir
			}
			tasks = append(tasks, task{
				kind:     segment.KindSource,
				name:     name,
				indexKey: segment.IndexKey(segment.KindSource, ""),
				merger:   m,
			})
		}
	}

	if sum := p.Schema.Summary; sum != nil {
		for _, g := range sum.Groups {
			m := summary.NewMerger(summary.Options{Logger: logger, Resource: o.resource})
			if err := m.Init(sum, p.params(summary.ParamGroupName, g.Name)); err != nil {
				return nil, err
			}
			tasks = append(tasks, task{
				kind:     segment.KindSummary,
				name:     g.Name,
				indexKey: segment.IndexKey(segment.KindSummary, ""),
				merger:   m,
			})
		}
	}
	return tasks, nil
}
