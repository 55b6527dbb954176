package attribute

import (
	"context"
	"errors"
	"sort"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/internal/varlen"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// Indexer is the on-disk attribute of one segment.
type Indexer interface {
	DocCount() uint32
	// SetPatchReader makes reads return patched values.
	SetPatchReader(r *PatchReader)
	Close() error
}

// As returns ix as T if it has that capability.
func As[T any](ix Indexer) (T, bool) {
	t, ok := ix.(T)
	return t, ok
}

// SingleValueIndexer reads a fixed-width column, possibly split into
// slices.
type SingleValueIndexer[T Fixed] struct {
	docCount uint32
	columns  []*column
	bases    []uint64
	patch    *PatchReader
}

// OpenSingleValueIndexer opens the attribute of seg. A slice_info file in
// the attribute directory marks a sliced column.
func OpenSingleValueIndexer[T Fixed](ctx context.Context, seg segment.Segment, cfg *config.AttributeConfig) (*SingleValueIndexer[T], error) {
	dir := seg.Directory().Sub(segment.AttributeDir, cfg.Name)
	opts := newColumnOptions[T](cfg)

	dirs := []blobstore.Dir{dir}
	info, err := LoadSliceInfo(ctx, dir)
	switch {
	case err == nil:
		dirs = dirs[:0]
		for i := range info.SliceCount {
			dirs = append(dirs, dir.Sub(segment.SliceDirName(i)))
		}
	case !errors.Is(err, status.ErrNotFound):
		return nil, err
	}

	ix := &SingleValueIndexer[T]{docCount: seg.DocCount()}
	var base uint64
	for _, d := range dirs {
		c, err := openColumn(ctx, d, opts)
		if err != nil {
			_ = ix.Close()
			return nil, err
		}
		ix.columns = append(ix.columns, c)
		ix.bases = append(ix.bases, base)
		base += c.count
	}
	if base != uint64(ix.docCount) {
		_ = ix.Close()
		return nil, status.Corruptionf("attribute %s in segment %d: %d values for %d docs", cfg.Name, seg.ID(), base, ix.docCount)
	}
	return ix, nil
}

func (ix *SingleValueIndexer[T]) DocCount() uint32 { return ix.docCount }

func (ix *SingleValueIndexer[T]) SetPatchReader(r *PatchReader) { ix.patch = r }

// Get returns the value of doc and whether it is null.
func (ix *SingleValueIndexer[T]) Get(doc model.DocID) (T, bool, error) {
	var zero T
	if v, isNull, ok, err := patchedFixed[T](ix.patch, doc); ok || err != nil {
		return v, isNull, err
	}
	if doc < 0 || uint32(doc) >= ix.docCount {
		return zero, false, status.InvalidArgsf("doc %d out of range [0, %d)", doc, ix.docCount)
	}
	i := sort.Search(len(ix.bases), func(i int) bool { return ix.bases[i] > uint64(doc) }) - 1
	bits, isNull, err := ix.columns[i].get(uint64(doc) - ix.bases[i])
	if err != nil {
		return zero, false, err
	}
	return fromBits[T](bits), isNull, nil
}

func (ix *SingleValueIndexer[T]) Close() error {
	var err error
	for _, c := range ix.columns {
		err = errors.Join(err, c.Close())
	}
	ix.columns = nil
	return err
}

func patchedFixed[T Fixed](r *PatchReader, doc model.DocID) (T, bool, bool, error) {
	var zero T
	if r == nil {
		return zero, false, false, nil
	}
	rec, ok := r.Seek(doc)
	if !ok {
		return zero, false, false, nil
	}
	if rec.IsNull {
		return zero, true, true, nil
	}
	if len(rec.Value) != sizeOf[T]() {
		return zero, false, false, status.Corruptionf("patch of doc %d: %d bytes, want %d", doc, len(rec.Value), sizeOf[T]())
	}
	return decodeFixed[T](rec.Value), false, true, nil
}

// readPool bounds the memory of open variable-length readers of one
// merger by closing the least recently opened ones.
type readPool struct {
	limit int64
	used  int64
	open  []*MultiValueIndexer
}

func (p *readPool) opened(ix *MultiValueIndexer) {
	if p == nil {
		return
	}
	p.open = append(p.open, ix)
	p.used += ix.MemoryUse()
	for p.used > p.limit && len(p.open) > 1 && p.open[0] != ix {
		victim := p.open[0]
		p.open = p.open[1:]
		p.used -= victim.MemoryUse()
		_ = victim.closeReader()
	}
}

func (p *readPool) closed(ix *MultiValueIndexer) {
	if p == nil {
		return
	}
	for i, o := range p.open {
		if o == ix {
			p.open = append(p.open[:i], p.open[i+1:]...)
			p.used -= ix.MemoryUse()
			return
		}
	}
}

// MultiValueIndexer reads a variable-length attribute. The column is
// opened on first access and may be closed again by its read pool.
type MultiValueIndexer struct {
	ctx      context.Context
	dir      blobstore.Dir
	param    varlen.Param
	docCount uint32
	pool     *readPool

	reader *varlen.Reader
	patch  *PatchReader
	opens  int
}

var _ varlen.ValueReader = (*MultiValueIndexer)(nil)

// OpenMultiValueIndexer returns an indexer of the attribute of seg.
func OpenMultiValueIndexer(ctx context.Context, seg segment.Segment, cfg *config.AttributeConfig, param varlen.Param) *MultiValueIndexer {
	return &MultiValueIndexer{
		ctx:      ctx,
		dir:      seg.Directory().Sub(segment.AttributeDir, cfg.Name),
		param:    param,
		docCount: seg.DocCount(),
	}
}

func (ix *MultiValueIndexer) ensureOpen() (*varlen.Reader, error) {
	if ix.reader != nil {
		return ix.reader, nil
	}
	r, err := varlen.Open(ix.ctx, ix.dir, segment.OffsetFile, segment.DataFile, ix.param)
	if err != nil {
		return nil, err
	}
	if r.DocCount() != ix.docCount {
		_ = r.Close()
		return nil, status.Corruptionf("attribute in %s: %d values for %d docs", ix.dir, r.DocCount(), ix.docCount)
	}
	ix.reader = r
	ix.opens++
	ix.pool.opened(ix)
	return r, nil
}

func (ix *MultiValueIndexer) closeReader() error {
	if ix.reader == nil {
		return nil
	}
	err := ix.reader.Close()
	ix.reader = nil
	return err
}

// MemoryUse returns the bytes held while the column is open.
func (ix *MultiValueIndexer) MemoryUse() int64 { return int64(ix.docCount+1) * 8 }

func (ix *MultiValueIndexer) DocCount() uint32 { return ix.docCount }

func (ix *MultiValueIndexer) SetPatchReader(r *PatchReader) { ix.patch = r }

// GetValue returns the base value of doc, ignoring patches.
func (ix *MultiValueIndexer) GetValue(doc model.DocID) ([]byte, error) {
	r, err := ix.ensureOpen()
	if err != nil {
		return nil, err
	}
	return r.GetValue(doc)
}

func (ix *MultiValueIndexer) GetOffset(doc model.DocID) (uint64, error) {
	r, err := ix.ensureOpen()
	if err != nil {
		return 0, err
	}
	return r.GetOffset(doc)
}

func (ix *MultiValueIndexer) ReadItemAt(offset uint64) ([]byte, error) {
	r, err := ix.ensureOpen()
	if err != nil {
		return nil, err
	}
	return r.ReadItemAt(offset)
}

// Read returns the value of doc with patches applied.
func (ix *MultiValueIndexer) Read(doc model.DocID) ([]byte, error) {
	if ix.patch != nil {
		if value, ok, err := ix.patch.Patch(doc); err != nil || ok {
			return value, err
		}
	}
	return ix.GetValue(doc)
}

func (ix *MultiValueIndexer) Close() error {
	ix.pool.closed(ix)
	return ix.closeReader()
}

// DefaultValueIndexer stands in for segments built before the attribute
// existed. Every document holds the default value.
type DefaultValueIndexer struct {
	value    []byte
	isNull   bool
	docCount uint32
	patch    *PatchReader
}

func NewDefaultValueIndexer(value []byte, isNull bool, docCount uint32) *DefaultValueIndexer {
	return &DefaultValueIndexer{value: value, isNull: isNull, docCount: docCount}
}

func (ix *DefaultValueIndexer) DocCount() uint32               { return ix.docCount }
func (ix *DefaultValueIndexer) SetPatchReader(r *PatchReader) { ix.patch = r }
func (ix *DefaultValueIndexer) Close() error                  { return nil }

// Read returns the stored form of the value of doc and whether it is null.
func (ix *DefaultValueIndexer) Read(doc model.DocID) ([]byte, bool) {
	if ix.patch != nil {
		if rec, ok := ix.patch.Seek(doc); ok {
			return rec.Value, rec.IsNull
		}
	}
	return ix.value, ix.isNull
}

// ValueReader serves the default value to varlen.Merger.
func (ix *DefaultValueIndexer) ValueReader() varlen.ValueReader {
	return varlen.NewDefaultReader(ix.value, ix.docCount)
}

// defaultSingle adapts a DefaultValueIndexer to fixed-width reads.
type defaultSingle[T Fixed] struct {
	ix *DefaultValueIndexer
}

func (d defaultSingle[T]) Get(doc model.DocID) (T, bool, error) {
	var zero T
	if v, isNull, ok, err := patchedFixed[T](d.ix.patch, doc); ok || err != nil {
		return v, isNull, err
	}
	if d.ix.isNull {
		return zero, true, nil
	}
	return decodeFixed[T](d.ix.value), false, nil
}
