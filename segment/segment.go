package segment

import (
	"context"
	"slices"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/codec"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/status"
)

// Segment is a sealed unit of index data.
type Segment interface {
	ID() model.SegmentID
	DocCount() uint32
	Directory() blobstore.Dir
	// HasIndex reports whether the segment was built with the index.
	// Segments from before a schema change may lack newer attributes.
	HasIndex(kind, name string) bool
}

// Info is the persisted segment_info record.
type Info struct {
	SegmentID model.SegmentID `json:"segment_id"`
	DocCount  uint32          `json:"doc_count"`
	Indexes   []string        `json:"indexes,omitempty"`
}

// DiskSegment is a Segment backed by a directory with a segment_info file.
type DiskSegment struct {
	info Info
	dir  blobstore.Dir
}

// NewDiskSegment builds a segment from a known info record.
func NewDiskSegment(info Info, dir blobstore.Dir) *DiskSegment {
	info.Indexes = slices.Clone(info.Indexes)
	slices.Sort(info.Indexes)
	return &DiskSegment{info: info, dir: dir}
}

// Open reads segment_info from dir.
func Open(ctx context.Context, dir blobstore.Dir) (*DiskSegment, error) {
	info, err := ReadInfo(ctx, dir)
	if err != nil {
		return nil, err
	}
	return NewDiskSegment(*info, dir), nil
}

func (s *DiskSegment) ID() model.SegmentID      { return s.info.SegmentID }
func (s *DiskSegment) DocCount() uint32         { return s.info.DocCount }
func (s *DiskSegment) Directory() blobstore.Dir { return s.dir }
func (s *DiskSegment) Info() Info               { return s.info }

func (s *DiskSegment) HasIndex(kind, name string) bool {
	_, ok := slices.BinarySearch(s.info.Indexes, IndexKey(kind, name))
	return ok
}

// ReadInfo reads and decodes segment_info.
func ReadInfo(ctx context.Context, dir blobstore.Dir) (*Info, error) {
	data, err := dir.ReadFile(ctx, InfoFile)
	if blobstore.IsNotFound(err) {
		return nil, status.NotFoundf("segment info in %s", dir)
	}
	if err != nil {
		return nil, status.IOError(err, "read segment info in %s", dir)
	}
	var info Info
	if err := codec.Default.Unmarshal(data, &info); err != nil {
		return nil, status.Corruptionf("decode segment info in %s: %v", dir, err)
	}
	return &info, nil
}

// WriteInfo writes segment_info.
func WriteInfo(ctx context.Context, dir blobstore.Dir, info Info) error {
	info.Indexes = slices.Clone(info.Indexes)
	slices.Sort(info.Indexes)
	info.Indexes = slices.Compact(info.Indexes)
	data, err := codec.Default.Marshal(info)
	if err != nil {
		return err
	}
	return status.IOError(dir.WriteFile(ctx, InfoFile, data), "write segment info in %s", dir)
}
