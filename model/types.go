package model

import "fmt"

// DocID identifies a document, either segment-local or global within a merge plan.
type DocID int32

// SegmentID is the unique identifier for a segment.
type SegmentID int32

const (
	// InvalidDocID marks a deleted or unmapped document.
	InvalidDocID DocID = -1
	// InvalidSegmentID marks a document that is not routed to any target segment.
	InvalidSegmentID SegmentID = -1
)

// Valid reports whether id is not the invalid sentinel.
func (id DocID) Valid() bool { return id >= 0 }

// Valid reports whether id is not the invalid sentinel.
func (id SegmentID) Valid() bool { return id >= 0 }

// Location is a (segment, local doc) pair.
type Location struct {
	SegmentID SegmentID
	DocID     DocID
}

// InvalidLocation is returned for dropped documents.
var InvalidLocation = Location{SegmentID: InvalidSegmentID, DocID: InvalidDocID}

// String returns a string representation of the Location.
func (l Location) String() string {
	return fmt.Sprintf("Loc(%d:%d)", l.SegmentID, l.DocID)
}
