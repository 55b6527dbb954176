package segment

import (
	"fmt"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/status"
)

// SourceSegment is a merge input. Global doc ids of its documents are
// BaseDocID + local id.
type SourceSegment struct {
	Segment
	BaseDocID model.DocID
}

// Statistics of a target segment.
type Statistics struct {
	DocCount uint32
}

// Meta describes a target segment.
type Meta struct {
	ID    model.SegmentID
	Dir   blobstore.Dir
	Stats Statistics
}

// MergeInfos is the input of every merger.
type MergeInfos struct {
	SrcSegments    []SourceSegment
	TargetSegments []Meta
}

// NewMergeInfos assigns consecutive base doc ids to segments in order.
func NewMergeInfos(segments []Segment, targets []Meta) *MergeInfos {
	infos := &MergeInfos{TargetSegments: targets}
	var base model.DocID
	for _, s := range segments {
		infos.SrcSegments = append(infos.SrcSegments, SourceSegment{Segment: s, BaseDocID: base})
		base += model.DocID(s.DocCount())
	}
	return infos
}

// Validate checks that base doc ids are monotonic and match document
// counts, and that target ids are valid and distinct.
func (m *MergeInfos) Validate() error {
	if len(m.TargetSegments) == 0 {
		return status.InvalidArgsf("merge has no target segment")
	}
	for i := 1; i < len(m.SrcSegments); i++ {
		prev := m.SrcSegments[i-1]
		if want := prev.BaseDocID + model.DocID(prev.DocCount()); m.SrcSegments[i].BaseDocID != want {
			return status.InvalidArgsf("segment %d base doc id %d, want %d", m.SrcSegments[i].ID(), m.SrcSegments[i].BaseDocID, want)
		}
	}
	if len(m.SrcSegments) > 0 && m.SrcSegments[0].BaseDocID < 0 {
		return status.InvalidArgsf("negative base doc id %d", m.SrcSegments[0].BaseDocID)
	}
	seen := make(map[model.SegmentID]bool, len(m.TargetSegments))
	for _, t := range m.TargetSegments {
		if !t.ID.Valid() {
			return status.InvalidArgsf("invalid target segment id %d", t.ID)
		}
		if seen[t.ID] {
			return status.InvalidArgsf("duplicate target segment %d", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// TotalDocCount returns the number of documents over all sources.
func (m *MergeInfos) TotalDocCount() uint32 {
	var n uint32
	for _, s := range m.SrcSegments {
		n += s.DocCount()
	}
	return n
}

// TargetIndex returns the position of target id in Targets.
func (m *MergeInfos) TargetIndex(id model.SegmentID) (int, bool) {
	for i, t := range m.TargetSegments {
		if t.ID == id {
			return i, true
		}
	}
	return -1, false
}

// String summarizes the plan for logs.
func (m *MergeInfos) String() string {
	src := make([]model.SegmentID, len(m.SrcSegments))
	for i, s := range m.SrcSegments {
		src[i] = s.ID()
	}
	dst := make([]model.SegmentID, len(m.TargetSegments))
	for i, t := range m.TargetSegments {
		dst[i] = t.ID
	}
	return fmt.Sprintf("%v->%v", src, dst)
}
