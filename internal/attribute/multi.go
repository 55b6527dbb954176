package attribute

import (
	"context"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/internal/varlen"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
	"github.com/hupe1980/indexmerge/taskres"
)

// ParamForAttribute returns the column layout of a variable-length
// attribute.
func ParamForAttribute(cfg *config.AttributeConfig) varlen.Param {
	p := varlen.Param{
		EnableAdaptiveOffset: true,
		OffsetThreshold:      cfg.Threshold(),
		EqualCompressOffset:  cfg.IsEqualCompress(),
		DataItemUniqEncode:   cfg.IsUniqEncode(),
		AppendDataItemLength: cfg.IsUniqEncode(),
	}
	if cfg.FileCompress.Enabled() {
		p.DataCompressor = cfg.FileCompress.Compressor
		p.CompressBufferSize = cfg.FileCompress.BlockSize()
		p.CompressLevel = cfg.FileCompress.Level
	}
	return p
}

// MultiValueMerger merges a variable-length attribute: multi-value numbers
// or strings. T is the element type.
type MultiValueMerger[T Element] struct {
	baseMerger
	pool *readPool
}

var _ Merger = (*MultiValueMerger[string])(nil)

func NewMultiValueMerger[T Element](opts Options) *MultiValueMerger[T] {
	return &MultiValueMerger[T]{baseMerger: baseMerger{opts: opts}}
}

func (m *MultiValueMerger[T]) Merge(ctx context.Context, infos *segment.MergeInfos, res *taskres.Manager) error {
	m.pool = &readPool{limit: m.memLimit}
	return m.merge(ctx, infos, res, m)
}

func (m *MultiValueMerger[T]) EstimateMemoryUse(infos *segment.MergeInfos) int64 {
	if m.cfg == nil {
		return varlen.EstimateMemoryUse(varlen.Param{}, infos.TotalDocCount())
	}
	mem := varlen.EstimateMemoryUse(ParamForAttribute(m.cfg), infos.TotalDocCount())
	var open int64
	for _, src := range infos.SrcSegments {
		open += int64(src.DocCount()+1) * 8
	}
	return mem + min(open, m.memLimit)
}

func (m *MultiValueMerger[T]) openIndexer(ctx context.Context, seg segment.Segment) (Indexer, error) {
	if seg.HasIndex(segment.KindAttribute, m.cfg.Name) {
		ix := OpenMultiValueIndexer(ctx, seg, m.cfg, ParamForAttribute(m.cfg))
		ix.pool = m.pool
		return ix, nil
	}
	value, err := encodeDefault[T](m.cfg.DefaultValue, m.cfg.MultiValue)
	if err != nil {
		return nil, err
	}
	return NewDefaultValueIndexer(value, false, seg.DocCount()), nil
}

func (m *MultiValueMerger[T]) inputs(indexers []Indexer) ([]varlen.Input, error) {
	inputs := make([]varlen.Input, len(indexers))
	for i, ix := range indexers {
		var patch *PatchReader
		switch v := ix.(type) {
		case *MultiValueIndexer:
			inputs[i].Reader = v
			patch = v.patch
		case *DefaultValueIndexer:
			inputs[i].Reader = v.ValueReader()
			patch = v.patch
		default:
			return nil, status.Corruptionf("attribute %s: indexer %d is %T", m.cfg.Name, i, ix)
		}
		if patch != nil {
			inputs[i].Patch = patch
		}
	}
	return inputs, nil
}

func (m *MultiValueMerger[T]) doMerge(ctx context.Context, infos *segment.MergeInfos, mapper docmapper.DocMapper, indexers []Indexer, outDirs []blobstore.Dir) error {
	inputs, err := m.inputs(indexers)
	if err != nil {
		return err
	}
	param := ParamForAttribute(m.cfg)

	writers := make([]*varlen.Writer, 0, len(outDirs))
	closeAll := func() {
		for _, w := range writers {
			_ = w.Close()
		}
	}
	for _, dir := range outDirs {
		w := varlen.NewWriter(varlen.WithResourceController(m.opts.Resource))
		if err := w.Init(ctx, dir, segment.OffsetFile, segment.DataFile, param); err != nil {
			closeAll()
			return err
		}
		writers = append(writers, w)
	}

	vm := varlen.NewMerger(param, varlen.WithLogger(m.opts.logger().With("index", m.cfg.Name)))
	if err := vm.Init(infos, mapper, inputs, writers); err != nil {
		closeAll()
		return err
	}
	if err := vm.Merge(ctx); err != nil {
		return err
	}
	for i, w := range writers {
		info := DataInfo{UniqItemCount: w.DataItemCount(), MaxItemLength: w.MaxItemLen()}
		if err := StoreDataInfo(ctx, outDirs[i], info); err != nil {
			return err
		}
	}
	return nil
}
