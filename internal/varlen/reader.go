package varlen

import (
	"context"
	"encoding/binary"
	"errors"
	"io"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/internal/compress"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/status"
)

// ValueReader is the base data of one source segment as seen by Merger.
type ValueReader interface {
	GetValue(doc model.DocID) ([]byte, error)
	// GetOffset returns the physical offset of a document's item. Documents
	// with equal offsets share the item.
	GetOffset(doc model.DocID) (uint64, error)
	ReadItemAt(offset uint64) ([]byte, error)
	DocCount() uint32
}

// Reader reads a column written by Writer. It is not safe for concurrent
// use.
type Reader struct {
	param    Param
	offsets  []uint64
	guard    bool
	docCount uint32

	blob     blobstore.Blob
	data     io.ReaderAt
	dataSize uint64
	lenBuf   [binary.MaxVarintLen64]byte
}

var _ ValueReader = (*Reader)(nil)

// Open opens the column stored as offsetFile and dataFile in dir.
func Open(ctx context.Context, dir blobstore.Dir, offsetFile, dataFile string, param Param) (*Reader, error) {
	if err := param.Validate(); err != nil {
		return nil, err
	}
	raw, err := dir.ReadFile(ctx, offsetFile)
	if err != nil {
		return nil, status.IOError(err, "read %s in %s", offsetFile, dir)
	}
	offsets, flags, err := decodeOffsets(raw)
	if err != nil {
		return nil, err
	}
	guard := flags&flagGuard != 0
	if !guard && !param.AppendDataItemLength {
		return nil, status.Corruptionf("%s in %s: no guard offset and no item length", offsetFile, dir)
	}
	count := len(offsets)
	if guard {
		if count == 0 {
			return nil, status.Corruptionf("%s in %s: missing guard offset", offsetFile, dir)
		}
		count--
	}

	blob, err := dir.Open(ctx, dataFile)
	if err != nil {
		return nil, status.IOError(err, "open %s in %s", dataFile, dir)
	}
	r := &Reader{
		param:    param,
		offsets:  offsets,
		guard:    guard,
		docCount: uint32(count),
		blob:     blob,
		data:     blobstore.NewReaderAt(ctx, blob),
		dataSize: uint64(blob.Size()),
	}
	if param.DataCompressor != "" {
		cr, err := compress.NewReader(r.data, blob.Size(), param.DataCompressor)
		if err != nil {
			_ = blob.Close()
			return nil, status.Corruptionf("%s in %s: %v", dataFile, dir, err)
		}
		r.data = cr
		r.dataSize = uint64(cr.Size())
	}
	if guard && offsets[count] != r.dataSize {
		_ = blob.Close()
		return nil, status.Corruptionf("%s in %s: guard offset %d, data length %d", offsetFile, dir, offsets[count], r.dataSize)
	}
	return r, nil
}

func (r *Reader) DocCount() uint32 { return r.docCount }

func (r *Reader) GetOffset(doc model.DocID) (uint64, error) {
	if doc < 0 || uint32(doc) >= r.docCount {
		return 0, status.InvalidArgsf("doc %d out of range [0, %d)", doc, r.docCount)
	}
	return r.offsets[doc], nil
}

// GetValue returns the value of doc.
func (r *Reader) GetValue(doc model.DocID) ([]byte, error) {
	off, err := r.GetOffset(doc)
	if err != nil {
		return nil, err
	}
	if r.param.AppendDataItemLength {
		return r.ReadItemAt(off)
	}
	end := r.offsets[doc+1]
	if end < off || end > r.dataSize {
		return nil, status.Corruptionf("doc %d: item [%d, %d) out of data length %d", doc, off, end, r.dataSize)
	}
	return r.read(off, end-off)
}

// ReadItemAt reads the length-prefixed item at offset.
func (r *Reader) ReadItemAt(offset uint64) ([]byte, error) {
	if !r.param.AppendDataItemLength {
		return nil, status.InvalidArgsf("items carry no length")
	}
	if offset >= r.dataSize {
		return nil, status.Corruptionf("item offset %d beyond data length %d", offset, r.dataSize)
	}
	n := min(uint64(len(r.lenBuf)), r.dataSize-offset)
	if _, err := r.data.ReadAt(r.lenBuf[:n], int64(offset)); err != nil && !errors.Is(err, io.EOF) {
		return nil, status.IOError(err, "read item length at %d", offset)
	}
	length, k := binary.Uvarint(r.lenBuf[:n])
	if k <= 0 {
		return nil, status.Corruptionf("bad item length at %d", offset)
	}
	start := offset + uint64(k)
	if length > r.dataSize-start {
		return nil, status.Corruptionf("item at %d: length %d beyond data length %d", offset, length, r.dataSize)
	}
	return r.read(start, length)
}

func (r *Reader) read(off, n uint64) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := r.data.ReadAt(buf, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return nil, status.IOError(err, "read item at %d", off)
	}
	return buf, nil
}

// Close releases the data file.
func (r *Reader) Close() error {
	if r.blob == nil {
		return nil
	}
	err := r.blob.Close()
	r.blob = nil
	return err
}

// DefaultReader serves the same value for every document. It stands in
// for segments built before the column existed.
type DefaultReader struct {
	value    []byte
	docCount uint32
}

var _ ValueReader = (*DefaultReader)(nil)

// NewDefaultReader returns a reader of docCount copies of value.
func NewDefaultReader(value []byte, docCount uint32) *DefaultReader {
	return &DefaultReader{value: value, docCount: docCount}
}

func (d *DefaultReader) GetValue(doc model.DocID) ([]byte, error) {
	if doc < 0 || uint32(doc) >= d.docCount {
		return nil, status.InvalidArgsf("doc %d out of range [0, %d)", doc, d.docCount)
	}
	return d.value, nil
}

func (d *DefaultReader) GetOffset(doc model.DocID) (uint64, error) {
	if doc < 0 || uint32(doc) >= d.docCount {
		return 0, status.InvalidArgsf("doc %d out of range [0, %d)", doc, d.docCount)
	}
	return 0, nil
}

func (d *DefaultReader) ReadItemAt(uint64) ([]byte, error) { return d.value, nil }
func (d *DefaultReader) DocCount() uint32                  { return d.docCount }
