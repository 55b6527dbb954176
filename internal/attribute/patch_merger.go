package attribute

import (
	"context"
	"maps"
	"slices"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
)

// PatchFileMerger carries forward the patches that merged segments issued
// for segments outside the merge.
type PatchFileMerger struct{}

// Merge writes one deduplicated patch file per destination into target.
// The file takes the newest merged source segment id as its source, so it
// keeps its place among the other patch files of the destination.
func (PatchFileMerger) Merge(ctx context.Context, infos *segment.MergeInfos, all PatchInfos, target blobstore.Dir) (int, error) {
	merged := make(map[model.SegmentID]bool, len(infos.SrcSegments))
	for _, src := range infos.SrcSegments {
		merged[src.ID()] = true
	}

	written := 0
	for _, dest := range slices.Sorted(maps.Keys(all)) {
		if merged[dest] {
			continue
		}
		var files []PatchFileInfo
		for _, f := range all[dest] {
			if merged[f.SrcSegment] {
				files = append(files, f)
			}
		}
		if len(files) == 0 {
			continue
		}
		r, err := NewPatchReader(ctx, files)
		if err != nil {
			return written, err
		}
		w := NewPatchFileWriter()
		for rec, ok := r.Next(); ok; rec, ok = r.Next() {
			w.Add(rec.Doc, rec.Value, rec.IsNull)
		}
		if err := w.Write(ctx, target, PatchFileName(files[len(files)-1].SrcSegment, dest)); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
