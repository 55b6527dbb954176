package docmerge

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
	"github.com/hupe1980/indexmerge/testutil"
)

func newDir() blobstore.Dir {
	return blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
}

func drain(t *testing.T, h *Heap) []DocumentMergeInfo {
	t.Helper()
	var out []DocumentMergeInfo
	for {
		info, ok := h.Next()
		if !ok {
			break
		}
		out = append(out, info)
	}
	return out
}

func TestHeapCompleteness(t *testing.T) {
	rng := testutil.NewRNG(4711)
	counts := []uint32{50, 1, 0, 120, 33}
	infos := testutil.MergeInfos(newDir(), counts, 3, 5, 9)

	deletions := make([]*roaring.Bitmap, len(counts))
	for i, n := range counts {
		deletions[i] = rng.Deletions(n, 0.25)
	}
	dm, err := docmapper.NewReclaimMap(infos, deletions)
	require.NoError(t, err)

	h := NewHeap(infos, dm)
	docs := drain(t, h)
	require.NoError(t, h.Err())
	assert.True(t, h.IsEmpty())
	assert.Len(t, docs, int(dm.GetNewDocCount()))

	seen := map[model.DocID]bool{}
	next := map[model.SegmentID]model.DocID{}
	for _, d := range docs {
		assert.False(t, seen[d.OldDocID], "doc %d emitted twice", d.OldDocID)
		seen[d.OldDocID] = true

		assert.Equal(t, next[d.TargetSegmentID], d.NewDocID)
		next[d.TargetSegmentID]++

		src := infos.SrcSegments[d.SegmentIndex]
		local := uint32(d.OldDocID - src.BaseDocID)
		assert.Less(t, local, src.DocCount())
		assert.False(t, deletions[d.SegmentIndex].Contains(local))
	}
	for _, seg := range dm.TargetSegmentIDs() {
		assert.Equal(t, model.DocID(dm.GetTargetSegmentDocCount(seg)), next[seg])
	}
}

// Routes every document to one target but numbers segment 1 before
// segment 0, so the heap has to interleave.
func TestHeapInterleaves(t *testing.T) {
	infos := testutil.MergeInfos(newDir(), []uint32{2, 2}, 0)
	m := fakeMapper{
		0: {SegmentID: 0, DocID: 1},
		1: {SegmentID: 0, DocID: 3},
		2: {SegmentID: 0, DocID: 0},
		3: {SegmentID: 0, DocID: 2},
	}
	docs := drain(t, NewHeap(infos, m))
	var olds []model.DocID
	for _, d := range docs {
		olds = append(olds, d.OldDocID)
	}
	assert.Equal(t, []model.DocID{2, 0, 3, 1}, olds)
}

func TestHeapStallGuard(t *testing.T) {
	infos := testutil.MergeInfos(newDir(), []uint32{2}, 0)
	// Within the segment the new ids decrease.
	m := fakeMapper{
		0: {SegmentID: 0, DocID: 1},
		1: {SegmentID: 0, DocID: 0},
	}
	h := NewHeap(infos, m)
	docs := drain(t, h)
	assert.Empty(t, docs)
	assert.ErrorIs(t, h.Err(), status.ErrCorruption)

	// Duplicate new id: first doc is emitted, the second stalls.
	dup := fakeMapper{
		0: {SegmentID: 0, DocID: 0},
		1: {SegmentID: 0, DocID: 0},
	}
	h = NewHeap(infos, dup)
	assert.Len(t, drain(t, h), 1)
	assert.ErrorIs(t, h.Err(), status.ErrCorruption)
}

func TestHeapClone(t *testing.T) {
	infos := testutil.MergeInfos(newDir(), []uint32{3, 3}, 0)
	dm, err := docmapper.NewReclaimMap(infos, nil)
	require.NoError(t, err)

	h := NewHeap(infos, dm)
	_, ok := h.Next()
	require.True(t, ok)

	c := h.Clone()
	assert.Len(t, drain(t, c), 6)
	assert.Len(t, drain(t, h), 5)
}

func TestHeapEmptyPlan(t *testing.T) {
	infos := &segment.MergeInfos{TargetSegments: []segment.Meta{{ID: 0}}}
	h := NewHeap(infos, fakeMapper{})
	assert.True(t, h.IsEmpty())
	assert.NoError(t, h.Err())
}

type fakeMapper map[model.DocID]model.Location

func (f fakeMapper) Map(old model.DocID) (model.SegmentID, model.DocID) {
	loc, ok := f[old]
	if !ok {
		return model.InvalidSegmentID, model.InvalidDocID
	}
	return loc.SegmentID, loc.DocID
}

func (f fakeMapper) ReverseMap(seg model.SegmentID, newID model.DocID) model.DocID {
	for old, loc := range f {
		if loc.SegmentID == seg && loc.DocID == newID {
			return old
		}
	}
	return model.InvalidDocID
}

func (f fakeMapper) GetNewDocCount() uint32 { return uint32(len(f)) }

func (f fakeMapper) GetTargetSegmentDocCount(seg model.SegmentID) uint32 {
	var n uint32
	for _, loc := range f {
		if loc.SegmentID == seg {
			n++
		}
	}
	return n
}

func (f fakeMapper) TargetSegmentIDs() []model.SegmentID { return []model.SegmentID{0} }
