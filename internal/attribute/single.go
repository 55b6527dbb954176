package attribute

import (
	"context"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/internal/docmerge"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
	"github.com/hupe1980/indexmerge/taskres"
)

// singleReader is what SingleValueMerger needs from a source indexer.
type singleReader[T Fixed] interface {
	Get(doc model.DocID) (T, bool, error)
}

// SingleValueMerger merges a fixed-width single-value attribute.
type SingleValueMerger[T Fixed] struct {
	baseMerger
}

var _ Merger = (*SingleValueMerger[int32])(nil)

func NewSingleValueMerger[T Fixed](opts Options) *SingleValueMerger[T] {
	return &SingleValueMerger[T]{baseMerger{opts: opts}}
}

func (m *SingleValueMerger[T]) Merge(ctx context.Context, infos *segment.MergeInfos, res *taskres.Manager) error {
	return m.merge(ctx, infos, res, m)
}

// EstimateMemoryUse counts the append buffers, the values held for equal
// compression and the source columns that are read whole.
func (m *SingleValueMerger[T]) EstimateMemoryUse(infos *segment.MergeInfos) int64 {
	mem := int64(len(infos.TargetSegments)) * appendBufferSize
	if m.cfg != nil && m.cfg.IsEqualCompress() {
		mem += 2 * 8 * int64(infos.TotalDocCount())
	}
	if m.cfg != nil && m.cfg.Nullable {
		mem += int64(infos.TotalDocCount()) / 8
	}
	return mem
}

func (m *SingleValueMerger[T]) openIndexer(ctx context.Context, seg segment.Segment) (Indexer, error) {
	if seg.HasIndex(segment.KindAttribute, m.cfg.Name) {
		return OpenSingleValueIndexer[T](ctx, seg, m.cfg)
	}
	if m.cfg.DefaultValue == "" {
		var zero T
		return NewDefaultValueIndexer(appendFixed(nil, zero), m.cfg.Nullable, seg.DocCount()), nil
	}
	v, err := parseFixed[T](m.cfg.DefaultValue)
	if err != nil {
		return nil, err
	}
	return NewDefaultValueIndexer(appendFixed(nil, v), false, seg.DocCount()), nil
}

func (m *SingleValueMerger[T]) readers(indexers []Indexer) ([]singleReader[T], error) {
	readers := make([]singleReader[T], len(indexers))
	for i, ix := range indexers {
		if sv, ok := As[*SingleValueIndexer[T]](ix); ok {
			readers[i] = sv
			continue
		}
		if d, ok := As[*DefaultValueIndexer](ix); ok {
			readers[i] = defaultSingle[T]{d}
			continue
		}
		return nil, status.Corruptionf("attribute %s: indexer %d is %T", m.cfg.Name, i, ix)
	}
	return readers, nil
}

func (m *SingleValueMerger[T]) doMerge(ctx context.Context, infos *segment.MergeInfos, mapper docmapper.DocMapper, indexers []Indexer, outDirs []blobstore.Dir) error {
	if m.cfg.IsSliced() && len(infos.TargetSegments) > 1 {
		return status.Corruptionf("attribute %s: sliced merge into %d target segments", m.cfg.Name, len(infos.TargetSegments))
	}
	readers, err := m.readers(indexers)
	if err != nil {
		return err
	}

	begin, end := model.DocID(0), model.DocID(mapper.GetNewDocCount())
	if m.cfg.IsSliced() {
		begin, end = SliceRange(mapper.GetTargetSegmentDocCount(infos.TargetSegments[0].ID), m.cfg.SliceCount, m.cfg.SliceIdx)
	}

	opts := newColumnOptions[T](m.cfg)
	var outputs docmerge.OutputMapper[*columnWriter]
	err = outputs.Init(mapper, infos.TargetSegments, func(i int, _ segment.Meta) (*columnWriter, error) {
		return newColumnWriter(ctx, outDirs[i], opts, m.opts.Resource)
	})
	if err == nil {
		err = m.mergeData(ctx, infos, mapper, readers, &outputs, begin, end)
	}
	for _, w := range outputs.Outputs() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}
	outputs.Clear(nil)
	return err
}

func (m *SingleValueMerger[T]) mergeData(ctx context.Context, infos *segment.MergeInfos, mapper docmapper.DocMapper, readers []singleReader[T], outputs *docmerge.OutputMapper[*columnWriter], begin, end model.DocID) error {
	heap := docmerge.NewHeap(infos, mapper)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, ok := heap.Next()
		if !ok {
			break
		}
		if info.NewDocID < begin || info.NewDocID > end {
			continue
		}
		out, ok := outputs.OutputBySegmentID(info.TargetSegmentID)
		if !ok {
			continue
		}
		local := info.OldDocID - infos.SrcSegments[info.SegmentIndex].BaseDocID
		v, isNull, err := readers[info.SegmentIndex].Get(local)
		if err != nil {
			return err
		}
		if err := (*out).append(toBits(v), isNull); err != nil {
			return err
		}
	}
	return heap.Err()
}
