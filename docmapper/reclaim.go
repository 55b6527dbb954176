package docmapper

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// SplitFunc returns the index into the target list for the ordinal-th
// surviving document (old is its global id). live is the number of
// surviving documents in the plan.
type SplitFunc func(old model.DocID, ordinal, live uint32) int

// EvenSplit fills targets in order, each receiving ceil(live/targets)
// documents.
func EvenSplit(targets int) SplitFunc {
	return func(_ model.DocID, ordinal, live uint32) int {
		if targets <= 1 || live == 0 {
			return 0
		}
		per := (live + uint32(targets) - 1) / uint32(targets)
		return int(ordinal / per)
	}
}

type options struct {
	split SplitFunc
}

// Option configures NewReclaimMap.
type Option func(*options)

// WithSplit routes surviving documents with fn instead of EvenSplit.
func WithSplit(fn SplitFunc) Option {
	return func(o *options) {
		o.split = fn
	}
}

// ReclaimMap is the DocMapper produced by reclaiming deleted documents.
type ReclaimMap struct {
	targets  []model.SegmentID
	docCount uint32
	// old global id -> index into targets, -1 when dropped
	target []int32
	newIDs []model.DocID
	// per target: new local id -> old global id
	reverse [][]model.DocID
}

var _ DocMapper = (*ReclaimMap)(nil)

// NewReclaimMap builds the mapping for infos. deletions[i] holds the
// deleted local doc ids of infos.SrcSegments[i]; a nil entry or a short
// slice means nothing was deleted.
func NewReclaimMap(infos *segment.MergeInfos, deletions []*roaring.Bitmap, opts ...Option) (*ReclaimMap, error) {
	if err := infos.Validate(); err != nil {
		return nil, err
	}
	o := options{split: EvenSplit(len(infos.TargetSegments))}
	for _, opt := range opts {
		opt(&o)
	}

	targets := make([]model.SegmentID, len(infos.TargetSegments))
	for i, t := range infos.TargetSegments {
		targets[i] = t.ID
	}

	var live uint32
	for i, src := range infos.SrcSegments {
		live += src.DocCount() - deletedCount(deletions, i, src.DocCount())
	}

	total := infos.TotalDocCount()
	var base model.DocID
	if len(infos.SrcSegments) > 0 {
		base = infos.SrcSegments[0].BaseDocID
	}
	locs := make([]int32, int(base)+int(total))
	for i := range locs {
		locs[i] = -1
	}

	var ordinal uint32
	for i, src := range infos.SrcSegments {
		var del *roaring.Bitmap
		if i < len(deletions) {
			del = deletions[i]
		}
		for local := uint32(0); local < src.DocCount(); local++ {
			if del != nil && del.Contains(local) {
				continue
			}
			old := src.BaseDocID + model.DocID(local)
			idx := o.split(old, ordinal, live)
			if idx < 0 || idx >= len(targets) {
				return nil, status.InvalidArgsf("split routed doc %d to target index %d of %d", old, idx, len(targets))
			}
			locs[old] = int32(idx)
			ordinal++
		}
	}
	return newReclaimMap(targets, locs), nil
}

func deletedCount(deletions []*roaring.Bitmap, i int, docCount uint32) uint32 {
	if i >= len(deletions) || deletions[i] == nil || docCount == 0 {
		return 0
	}
	return uint32(deletions[i].Rank(docCount - 1))
}

// NewReclaimMapFromLocations builds a ReclaimMap from an explicit mapping
// indexed by old global id. Locations must number every target densely in
// old id order.
func NewReclaimMapFromLocations(targets []model.SegmentID, locs []model.Location) (*ReclaimMap, error) {
	target := make([]int32, len(locs))
	next := make([]model.DocID, len(targets))
	for old, loc := range locs {
		target[old] = -1
		if !loc.SegmentID.Valid() {
			continue
		}
		idx := slices.Index(targets, loc.SegmentID)
		if idx < 0 {
			return nil, status.InvalidArgsf("doc %d mapped to unknown segment %d", old, loc.SegmentID)
		}
		if loc.DocID != next[idx] {
			return nil, status.InvalidArgsf("doc %d mapped to %s, expected local id %d", old, loc, next[idx])
		}
		next[idx]++
		target[old] = int32(idx)
	}
	return newReclaimMap(slices.Clone(targets), target), nil
}

func newReclaimMap(targets []model.SegmentID, target []int32) *ReclaimMap {
	m := &ReclaimMap{
		targets: targets,
		target:  target,
		newIDs:  make([]model.DocID, len(target)),
		reverse: make([][]model.DocID, len(targets)),
	}
	for old, idx := range target {
		if idx < 0 {
			m.newIDs[old] = model.InvalidDocID
			continue
		}
		m.newIDs[old] = model.DocID(len(m.reverse[idx]))
		m.reverse[idx] = append(m.reverse[idx], model.DocID(old))
		m.docCount++
	}
	return m
}

func (m *ReclaimMap) Map(old model.DocID) (model.SegmentID, model.DocID) {
	if old < 0 || int(old) >= len(m.target) || m.target[old] < 0 {
		return model.InvalidSegmentID, model.InvalidDocID
	}
	return m.targets[m.target[old]], m.newIDs[old]
}

func (m *ReclaimMap) ReverseMap(seg model.SegmentID, newID model.DocID) model.DocID {
	idx := slices.Index(m.targets, seg)
	if idx < 0 || newID < 0 || int(newID) >= len(m.reverse[idx]) {
		return model.InvalidDocID
	}
	return m.reverse[idx][newID]
}

func (m *ReclaimMap) GetNewDocCount() uint32 { return m.docCount }

func (m *ReclaimMap) GetTargetSegmentDocCount(seg model.SegmentID) uint32 {
	idx := slices.Index(m.targets, seg)
	if idx < 0 {
		return 0
	}
	return uint32(len(m.reverse[idx]))
}

func (m *ReclaimMap) TargetSegmentIDs() []model.SegmentID {
	return slices.Clone(m.targets)
}

// OldDocCount returns the number of global ids covered by the map.
func (m *ReclaimMap) OldDocCount() uint32 { return uint32(len(m.target)) }
