package docmerge

import (
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// DocumentMergeInfo describes one surviving document.
type DocumentMergeInfo struct {
	SegmentIndex    int
	OldDocID        model.DocID // global
	NewDocID        model.DocID // local to TargetSegmentID
	TargetSegmentID model.SegmentID
}

// Heap yields every surviving document of a merge exactly once, in
// increasing new local id within each target segment.
//
// Source segments are scanned round-robin. A segment's next live document
// is emitted only when its new id is the next one expected by its target,
// otherwise the scan moves on to the next segment. This is a k-way merge on
// target local id and requires that the surviving documents of every
// source segment are already ordered by new id, which holds for any
// DocMapper that numbers targets in old id order.
//
// Heap is not safe for concurrent use.
type Heap struct {
	infos  *segment.MergeInfos
	mapper docmapper.DocMapper

	cursors   []model.DocID // next local id per source segment
	expected  map[model.SegmentID]model.DocID
	segCursor int
	current   DocumentMergeInfo
	err       error
}

// NewHeap returns an initialized heap.
func NewHeap(infos *segment.MergeInfos, mapper docmapper.DocMapper) *Heap {
	h := &Heap{}
	h.Init(infos, mapper)
	return h
}

// Init resets all cursors and primes the first document.
func (h *Heap) Init(infos *segment.MergeInfos, mapper docmapper.DocMapper) {
	h.infos = infos
	h.mapper = mapper
	h.cursors = make([]model.DocID, len(infos.SrcSegments))
	h.expected = make(map[model.SegmentID]model.DocID, len(infos.TargetSegments))
	h.segCursor = 0
	h.err = nil
	h.loadNextDoc()
}

func (h *Heap) loadNextDoc() {
	h.current = DocumentMergeInfo{
		SegmentIndex:    -1,
		OldDocID:        model.InvalidDocID,
		NewDocID:        model.InvalidDocID,
		TargetSegmentID: model.InvalidSegmentID,
	}
	n := len(h.infos.SrcSegments)
	if n == 0 {
		return
	}

	pending := false
	for step := 0; step < n; step++ {
		i := (h.segCursor + step) % n
		src := h.infos.SrcSegments[i]
		for h.cursors[i] < model.DocID(src.DocCount()) {
			old := src.BaseDocID + h.cursors[i]
			seg, newID := h.mapper.Map(old)
			if !seg.Valid() {
				h.cursors[i]++
				continue
			}
			if newID == h.expected[seg] {
				h.segCursor = i
				h.current = DocumentMergeInfo{
					SegmentIndex:    i,
					OldDocID:        old,
					NewDocID:        newID,
					TargetSegmentID: seg,
				}
				return
			}
			pending = true
			break
		}
	}

	// A whole pass found live documents but none in turn. Nothing changes
	// on a further pass, so the mapping is not monotonic.
	if pending {
		h.err = status.Corruptionf("doc mapper not monotonic: no emittable document among %d segments", n)
	}
}

// Next returns the next document, or false when exhausted or failed.
func (h *Heap) Next() (DocumentMergeInfo, bool) {
	if h.IsEmpty() {
		return DocumentMergeInfo{}, false
	}
	info := h.current
	h.expected[info.TargetSegmentID]++
	h.cursors[info.SegmentIndex]++
	h.loadNextDoc()
	return info, true
}

// IsEmpty reports whether no documents remain.
func (h *Heap) IsEmpty() bool { return h.current.NewDocID == model.InvalidDocID }

// Err returns the error that stopped the heap early, if any.
func (h *Heap) Err() error { return h.err }

// Clone returns an independent heap over the same plan, positioned at the
// first document.
func (h *Heap) Clone() *Heap { return NewHeap(h.infos, h.mapper) }
