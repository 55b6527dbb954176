package varlen

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/internal/docmerge"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// readBufferSize is the per-merge read buffer accounted by
// EstimateMemoryUse.
const readBufferSize = 64 * 1024

// PatchSource supplies updated values of one source segment by local doc
// id. Merger asks for doc ids in increasing order.
type PatchSource interface {
	Patch(doc model.DocID) ([]byte, bool, error)
}

// Input is the data of one source segment.
type Input struct {
	Reader ValueReader
	// Patch is nil when the segment has no pending updates.
	Patch PatchSource
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithLogger sets the logger for merge phases.
func WithLogger(l *slog.Logger) MergerOption {
	return func(m *Merger) {
		m.logger = l
	}
}

// Merger merges the columns of the source segments into one writer per
// target segment.
type Merger struct {
	param  Param
	logger *slog.Logger

	infos   *segment.MergeInfos
	inputs  []Input
	heap    *docmerge.Heap
	outputs docmerge.OutputMapper[*Writer]
	patched *roaring.Bitmap
}

// NewMerger creates a merger for columns laid out with param.
func NewMerger(param Param, opts ...MergerOption) *Merger {
	m := &Merger{
		param:   param,
		logger:  slog.Default(),
		patched: roaring.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init binds inputs and outputs, one per source and target segment. The
// merger takes ownership of the outputs and closes them in Merge.
func (m *Merger) Init(infos *segment.MergeInfos, mapper docmapper.DocMapper, inputs []Input, outputs []*Writer) error {
	if len(inputs) != len(infos.SrcSegments) {
		return status.InvalidArgsf("%d inputs for %d source segments", len(inputs), len(infos.SrcSegments))
	}
	if len(outputs) != len(infos.TargetSegments) {
		return status.InvalidArgsf("%d outputs for %d target segments", len(outputs), len(infos.TargetSegments))
	}
	for i, in := range inputs {
		if in.Reader == nil {
			return status.InvalidArgsf("input %d has no reader", i)
		}
	}
	m.infos = infos
	m.inputs = inputs
	m.heap = docmerge.NewHeap(infos, mapper)
	return m.outputs.Init(mapper, infos.TargetSegments, func(i int, _ segment.Meta) (*Writer, error) {
		return outputs[i], nil
	})
}

// Merge writes all surviving documents and closes every output, also when
// merging failed. It returns the first error.
func (m *Merger) Merge(ctx context.Context) error {
	start := time.Now()
	var err error
	if m.param.DataItemUniqEncode {
		err = m.uniqMerge(ctx)
	} else {
		err = m.normalMerge(ctx)
	}
	for _, w := range m.outputs.Outputs() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}
	m.outputs.Clear(nil)
	m.logger.DebugContext(ctx, "varlen merge finished",
		"uniq", m.param.DataItemUniqEncode,
		"patched", m.patched.GetCardinality(),
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

// PatchedDocs returns the global ids of documents whose value came from a
// patch.
func (m *Merger) PatchedDocs() *roaring.Bitmap { return m.patched }

func (m *Merger) value(info docmerge.DocumentMergeInfo) ([]byte, bool, error) {
	in := m.inputs[info.SegmentIndex]
	local := info.OldDocID - m.infos.SrcSegments[info.SegmentIndex].BaseDocID
	if in.Patch != nil {
		v, ok, err := in.Patch.Patch(local)
		if err != nil {
			return nil, false, err
		}
		if ok {
			m.patched.Add(uint32(info.OldDocID))
			return v, true, nil
		}
	}
	v, err := in.Reader.GetValue(local)
	return v, false, err
}

func (m *Merger) normalMerge(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, ok := m.heap.Next()
		if !ok {
			break
		}
		out, ok := m.outputs.OutputBySegmentID(info.TargetSegmentID)
		if !ok {
			continue
		}
		v, _, err := m.value(info)
		if err != nil {
			return err
		}
		if err := (*out).AppendValue(v); err != nil {
			return err
		}
	}
	return m.heap.Err()
}

// reservation is an offset slot whose value is resolved after all slots
// are known.
type reservation struct {
	segIdx int32
	outIdx int32
	pos    int
	old    uint64
}

// offsetPair maps an old item of one segment to its new offset in one
// output. Documents sharing an old item share the pair.
type offsetPair struct {
	segIdx int32
	outIdx int32
	old    uint64
	new    uint64
}

func comparePair(a, b offsetPair) int {
	return cmp.Or(
		cmp.Compare(a.segIdx, b.segIdx),
		cmp.Compare(a.old, b.old),
		cmp.Compare(a.outIdx, b.outIdx),
	)
}

// uniqMerge reserves an offset slot for every unpatched document, then
// writes each distinct old item once per output, then fills the slots.
// Patched values are written as they come and never shared.
func (m *Merger) uniqMerge(ctx context.Context) error {
	outputs := m.outputs.Outputs()
	outIdx := make(map[model.SegmentID]int32, len(outputs))
	for i, t := range m.infos.TargetSegments {
		outIdx[t.ID] = int32(i)
	}

	var reservations []reservation
	heap := m.heap.Clone()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, ok := heap.Next()
		if !ok {
			break
		}
		oi, ok := outIdx[info.TargetSegmentID]
		if !ok {
			continue
		}
		w := outputs[oi]
		in := m.inputs[info.SegmentIndex]
		local := info.OldDocID - m.infos.SrcSegments[info.SegmentIndex].BaseDocID
		if in.Patch != nil {
			v, ok, err := in.Patch.Patch(local)
			if err != nil {
				return err
			}
			if ok {
				m.patched.Add(uint32(info.OldDocID))
				if err := w.AppendRawValue(v); err != nil {
					return err
				}
				continue
			}
		}
		old, err := in.Reader.GetOffset(local)
		if err != nil {
			return err
		}
		pos, err := w.AppendOffset(0)
		if err != nil {
			return err
		}
		reservations = append(reservations, reservation{
			segIdx: int32(info.SegmentIndex),
			outIdx: oi,
			pos:    pos,
			old:    old,
		})
	}
	if err := heap.Err(); err != nil {
		return err
	}
	m.logger.DebugContext(ctx, "uniq merge reserved offsets", "reservations", len(reservations))

	pairs := make([]offsetPair, len(reservations))
	for i, r := range reservations {
		pairs[i] = offsetPair{segIdx: r.segIdx, outIdx: r.outIdx, old: r.old}
	}
	slices.SortFunc(pairs, comparePair)
	pairs = slices.CompactFunc(pairs, func(a, b offsetPair) bool { return comparePair(a, b) == 0 })

	for i := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &pairs[i]
		v, err := m.inputs[p.segIdx].Reader.ReadItemAt(p.old)
		if err != nil {
			return err
		}
		w := outputs[p.outIdx]
		p.new, err = w.AppendValueWithoutOffset(v, w.HashValue(v))
		if err != nil {
			return err
		}
	}
	m.logger.DebugContext(ctx, "uniq merge resolved items", "items", len(pairs))

	for _, r := range reservations {
		idx, found := slices.BinarySearchFunc(pairs, offsetPair{segIdx: r.segIdx, outIdx: r.outIdx, old: r.old}, comparePair)
		if !found {
			return status.Corruptionf("unresolved offset %d of segment index %d", r.old, r.segIdx)
		}
		if err := outputs[r.outIdx].SetOffset(r.pos, pairs[idx].new); err != nil {
			return err
		}
	}
	return nil
}

// EstimateMemoryUse returns the bytes a merge of docCount documents holds.
func (m *Merger) EstimateMemoryUse(docCount uint32) int64 {
	return EstimateMemoryUse(m.param, docCount)
}

// EstimateMemoryUse returns the bytes a merge of docCount documents with
// param holds: output offsets, a read buffer and, with uniq encode, the
// reservations, offset pairs and intern table.
func EstimateMemoryUse(param Param, docCount uint32) int64 {
	const (
		offsetSize      = 8
		reservationSize = 24
		pairSize        = 24
		internEntrySize = 48
		internBase      = 4096
	)
	n := int64(docCount)
	size := n*offsetSize + readBufferSize
	if param.DataCompressor != "" {
		size += 2 * int64(param.bufferSize())
	}
	if param.DataItemUniqEncode {
		size += internBase + n*(reservationSize+pairSize+internEntrySize)
	}
	return size
}
