package segment

import (
	"fmt"
	"path"

	"github.com/hupe1980/indexmerge/blobstore"
)

// Directory and file names inside a segment.
const (
	InfoFile        = "segment_info"
	DeletionMapFile = "deletionmap"

	AttributeDir  = "attribute"
	SourceDir     = "source"
	SourceMetaDir = "meta"
	SummaryDir    = "summary"

	DataFile     = "data"
	OffsetFile   = "offset"
	DataInfoFile = "data_info"
	NullFile     = "null"
	SliceInfo    = "slice_info"
)

// Index kinds.
const (
	KindAttribute = "attribute"
	KindSource    = "source"
	KindSummary   = "summary"
)

// IndexKey names an index in segment_info: "attribute/<name>" for
// attributes, the kind alone otherwise.
func IndexKey(kind, name string) string {
	if kind == KindAttribute {
		return path.Join(kind, name)
	}
	return kind
}

// SliceDirName returns the directory of attribute slice i.
func SliceDirName(i int) string { return fmt.Sprintf("slice_%d", i) }

// SourceGroupDirName returns the directory of source group id.
func SourceGroupDirName(id int) string { return fmt.Sprintf("group_%d", id) }

// AttributeDirOf returns the attribute directory below seg, including the
// slice directory when sliceCount > 1.
func AttributeDirOf(seg blobstore.Dir, name string, sliceCount, sliceIdx int) blobstore.Dir {
	d := seg.Sub(AttributeDir, name)
	if sliceCount > 1 {
		d = d.Sub(SliceDirName(sliceIdx))
	}
	return d
}

// SourceGroupDirOf returns the directory of source group id, or of the meta
// column when id equals groupCount.
func SourceGroupDirOf(seg blobstore.Dir, id, groupCount int) blobstore.Dir {
	if id == groupCount {
		return seg.Sub(SourceDir, SourceMetaDir)
	}
	return seg.Sub(SourceDir, SourceGroupDirName(id))
}

// SummaryGroupDirOf returns the directory of a summary group. The default
// group sits at the top of the summary directory.
func SummaryGroupDirOf(seg blobstore.Dir, group string, isDefault bool) blobstore.Dir {
	if isDefault {
		return seg.Sub(SummaryDir)
	}
	return seg.Sub(SummaryDir, group)
}
