package docmapper

import "github.com/hupe1980/indexmerge/model"

// ResourceType is the task resource type of persisted doc mappers.
const ResourceType = "DOC_MAPPER"

// DocMapper maps old global doc ids to (target segment, new local id).
type DocMapper interface {
	// Map returns (InvalidSegmentID, InvalidDocID) for dropped documents.
	Map(old model.DocID) (model.SegmentID, model.DocID)
	// ReverseMap returns the old global id of a new local id, or
	// InvalidDocID.
	ReverseMap(seg model.SegmentID, newID model.DocID) model.DocID
	GetNewDocCount() uint32
	GetTargetSegmentDocCount(seg model.SegmentID) uint32
	TargetSegmentIDs() []model.SegmentID
}
