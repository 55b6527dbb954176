package attribute

import (
	"context"
	"slices"

	"github.com/hupe1980/indexmerge/internal/queue"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/status"
)

// PatchReader merges the patch files of one segment. For a document
// present in several files the file listed last wins.
type PatchReader struct {
	records []PatchRecord
	pos     int
}

type patchCursor struct {
	file    int
	records []PatchRecord
}

// NewPatchReader loads files, ordered oldest first, and merges them.
func NewPatchReader(ctx context.Context, files []PatchFileInfo) (*PatchReader, error) {
	pq := queue.New(len(files), func(a, b patchCursor) bool {
		if a.records[0].Doc != b.records[0].Doc {
			return a.records[0].Doc < b.records[0].Doc
		}
		return a.file > b.file
	})
	total := 0
	for i, f := range files {
		data, err := f.Dir.ReadFile(ctx, f.Name)
		if err != nil {
			return nil, status.IOError(err, "read patch %s in %s", f.Name, f.Dir)
		}
		records, err := decodePatch(data)
		if err != nil {
			return nil, status.Corruptionf("patch %s in %s: %v", f.Name, f.Dir, err)
		}
		if len(records) > 0 {
			pq.PushItem(patchCursor{file: i, records: records})
			total += len(records)
		}
	}

	r := &PatchReader{records: make([]PatchRecord, 0, total)}
	for pq.Len() > 0 {
		c, _ := pq.PopItem()
		rec := c.records[0]
		// The newest file pops first for a doc; older ones are skipped.
		if n := len(r.records); n == 0 || r.records[n-1].Doc != rec.Doc {
			r.records = append(r.records, rec)
		}
		if c.records = c.records[1:]; len(c.records) > 0 {
			pq.PushItem(c)
		}
	}
	return r, nil
}

// Len returns the number of patched documents.
func (r *PatchReader) Len() int { return len(r.records) }

// Next returns the next record in doc order.
func (r *PatchReader) Next() (PatchRecord, bool) {
	if r.pos >= len(r.records) {
		return PatchRecord{}, false
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, true
}

// Reset rewinds Next.
func (r *PatchReader) Reset() { r.pos = 0 }

// Seek returns the record of doc.
func (r *PatchReader) Seek(doc model.DocID) (PatchRecord, bool) {
	i, ok := slices.BinarySearchFunc(r.records, doc, func(rec PatchRecord, d model.DocID) int {
		return int(rec.Doc) - int(d)
	})
	if !ok {
		return PatchRecord{}, false
	}
	return r.records[i], true
}

// Patch implements varlen.PatchSource. Variable-length columns have no
// null representation, so a null record is Corruption.
func (r *PatchReader) Patch(doc model.DocID) ([]byte, bool, error) {
	rec, ok := r.Seek(doc)
	if !ok {
		return nil, false, nil
	}
	if rec.IsNull {
		return nil, false, status.Corruptionf("null patch for doc %d of a variable-length attribute", doc)
	}
	return rec.Value, true, nil
}
