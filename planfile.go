package indexmerge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/indexmerge/codec"
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
	"github.com/hupe1980/indexmerge/taskres"
)

// PlanFile is the YAML form of a Plan, as read by the command line tool:
//
//	name: nightly-0042
//	schema: schema.yaml
//	docmapper: merge_plan_docmapper
//	resource_dir: s3://index/tasks/0042
//	sources:
//	  - s3://index/segments/segment_3
//	  - s3://index/segments/segment_5
//	targets:
//	  - id: 9
//	    uri: s3://index/segments/segment_9
//
// Relative local paths, including the schema path, are resolved against
// the directory of the plan file. Each source directory must hold a
// segment_info.
type PlanFile struct {
	Name        string            `yaml:"name,omitempty"`
	Schema      string            `yaml:"schema"`
	DocMapper   string            `yaml:"docmapper"`
	ResourceDir string            `yaml:"resource_dir"`
	Sources     []string          `yaml:"sources"`
	Targets     []PlanFileTarget  `yaml:"targets"`
	CacheBytes  int64             `yaml:"cache_bytes,omitempty"`
	MemoryLimit map[string]int64  `yaml:"merge_switch_memory_limit,omitempty"`

	dir string
}

// PlanFileTarget names a target segment and where it is written.
type PlanFileTarget struct {
	ID  model.SegmentID `yaml:"id"`
	URI string          `yaml:"uri"`
}

// LoadPlanFile reads and checks a plan file.
func LoadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, status.IOError(err, "read plan %s", path)
	}
	var pf PlanFile
	if err := (codec.YAML{}).Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("%w: decode plan %s: %v", status.ErrInvalidArgs, path, err)
	}
	pf.dir = filepath.Dir(path)
	if err := pf.Validate(); err != nil {
		return nil, err
	}
	return &pf, nil
}

// Validate checks that every required field is set.
func (pf *PlanFile) Validate() error {
	switch {
	case pf.Schema == "":
		return status.InvalidArgsf("plan file: no schema")
	case pf.DocMapper == "":
		return status.InvalidArgsf("plan file: no docmapper name")
	case pf.ResourceDir == "":
		return status.InvalidArgsf("plan file: no resource_dir")
	case len(pf.Targets) == 0:
		return status.InvalidArgsf("plan file: no targets")
	}
	for i, t := range pf.Targets {
		if t.URI == "" {
			return status.InvalidArgsf("plan file: target %d has no uri", i)
		}
	}
	return nil
}

func (pf *PlanFile) resolve(uri string) string {
	if pf.dir == "" || filepath.IsAbs(uri) || hasScheme(uri) {
		return uri
	}
	return filepath.Join(pf.dir, uri)
}

func hasScheme(uri string) bool {
	for i, c := range uri {
		if c == ':' {
			return i > 0 && len(uri) > i+2 && uri[i+1:i+3] == "//"
		}
		if c == '/' {
			return false
		}
	}
	return false
}

// MergeInfos opens the source segments and target directories.
func (pf *PlanFile) MergeInfos(ctx context.Context, opener *StoreOpener) (*segment.MergeInfos, error) {
	segs := make([]segment.Segment, 0, len(pf.Sources))
	for _, uri := range pf.Sources {
		dir, err := opener.Open(ctx, pf.resolve(uri))
		if err != nil {
			return nil, err
		}
		seg, err := segment.Open(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", uri, err)
		}
		segs = append(segs, seg)
	}
	metas := make([]segment.Meta, 0, len(pf.Targets))
	for _, t := range pf.Targets {
		dir, err := opener.Open(ctx, pf.resolve(t.URI))
		if err != nil {
			return nil, err
		}
		metas = append(metas, segment.Meta{ID: t.ID, Dir: dir})
	}
	infos := segment.NewMergeInfos(segs, metas)
	if err := infos.Validate(); err != nil {
		return nil, err
	}
	return infos, nil
}

// Plan loads the schema, opens all segments and the resource directory.
func (pf *PlanFile) Plan(ctx context.Context, opener *StoreOpener) (*Plan, error) {
	schema, err := config.LoadSchema(pf.resolve(pf.Schema))
	if err != nil {
		return nil, err
	}
	infos, err := pf.MergeInfos(ctx, opener)
	if err != nil {
		return nil, err
	}
	resDir, err := opener.Open(ctx, pf.resolve(pf.ResourceDir))
	if err != nil {
		return nil, err
	}
	return &Plan{
		Name:                   pf.Name,
		Schema:                 schema,
		Infos:                  infos,
		DocMapperName:          pf.DocMapper,
		Resources:              taskres.NewManager(resDir),
		MergeSwitchMemoryLimit: pf.MemoryLimit,
	}, nil
}

// BuildDocMapper creates the reclaim map of the plan file from the
// deletion maps of its sources and stores it in the resource directory.
// Surviving documents are split evenly over the first targets entries
// of the target list; zero uses every target.
func (pf *PlanFile) BuildDocMapper(ctx context.Context, opener *StoreOpener, targets int) (*docmapper.ReclaimMap, error) {
	infos, err := pf.MergeInfos(ctx, opener)
	if err != nil {
		return nil, err
	}
	if targets < 0 || targets > len(infos.TargetSegments) {
		return nil, status.InvalidArgsf("cannot split over %d of %d targets", targets, len(infos.TargetSegments))
	}
	if targets == 0 {
		targets = len(infos.TargetSegments)
	}
	deletions := make([]*roaring.Bitmap, len(infos.SrcSegments))
	for i, src := range infos.SrcSegments {
		if deletions[i], err = docmapper.ReadDeletionMap(ctx, src); err != nil {
			return nil, err
		}
	}
	m, err := docmapper.NewReclaimMap(infos, deletions, docmapper.WithSplit(docmapper.EvenSplit(targets)))
	if err != nil {
		return nil, err
	}
	resDir, err := opener.Open(ctx, pf.resolve(pf.ResourceDir))
	if err != nil {
		return nil, err
	}
	if err := docmapper.Store(ctx, resDir, pf.DocMapper, m); err != nil {
		return nil, err
	}
	return m, nil
}
