package varlen

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/internal/compress"
	"github.com/hupe1980/indexmerge/internal/hash"
	"github.com/hupe1980/indexmerge/resource"
	"github.com/hupe1980/indexmerge/status"
)

// ErrWriterClosed is returned for appends after Close.
var ErrWriterClosed = errors.New("varlen: writer closed")

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithResourceController throttles data writes through rc.
func WithResourceController(rc *resource.Controller) WriterOption {
	return func(w *Writer) {
		w.rc = rc
	}
}

// Writer appends values to a column. It is not safe for concurrent use.
type Writer struct {
	rc *resource.Controller

	ctx        context.Context
	dir        blobstore.Dir
	offsetFile string
	param      Param

	blob    blobstore.WritableBlob
	out     io.Writer
	cw      *compress.Writer
	dataLen uint64

	offsets []uint64
	intern  map[uint64][]internedItem

	maxItemLen    uint32
	dataItemCount uint32
	lenBuf        [binary.MaxVarintLen64]byte
	closed        bool
}

// internedItem is a stored item under its content hash. Items sharing a
// hash are told apart by their bytes.
type internedItem struct {
	off  uint64
	data []byte
}

// NewWriter returns a writer that must be initialized with Init.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Init creates the data file in dir. The offset file is written on Close.
func (w *Writer) Init(ctx context.Context, dir blobstore.Dir, offsetFile, dataFile string, param Param) error {
	if err := param.Validate(); err != nil {
		return err
	}
	blob, err := dir.Create(ctx, dataFile)
	if err != nil {
		return status.IOError(err, "create %s in %s", dataFile, dir)
	}
	w.ctx = ctx
	w.dir = dir
	w.offsetFile = offsetFile
	w.param = param
	w.blob = blob
	w.out = resource.NewRateLimitedWriter(ctx, blob, w.rc)

	if param.DataCompressor != "" {
		c, err := compress.ByName(param.DataCompressor, param.CompressLevel)
		if err != nil {
			_ = blob.Close()
			return status.InvalidArgsf("data compressor: %v", err)
		}
		w.cw, err = compress.NewWriter(w.out, c, param.bufferSize())
		if err != nil {
			_ = blob.Close()
			return status.InvalidArgsf("data compressor: %v", err)
		}
		w.out = w.cw
	}
	if param.DataItemUniqEncode {
		w.intern = make(map[uint64][]internedItem)
	}
	return nil
}

// HashValue returns the content hash used to intern data.
func (w *Writer) HashValue(data []byte) uint64 { return hash.Content(data) }

// AppendValue appends data as the value of the next document.
func (w *Writer) AppendValue(data []byte) error {
	return w.AppendValueWithHash(data, w.HashValue(data))
}

// AppendValueWithHash is AppendValue with a precomputed hash.
func (w *Writer) AppendValueWithHash(data []byte, h uint64) error {
	off, err := w.AppendValueWithoutOffset(data, h)
	if err != nil {
		return err
	}
	w.offsets = append(w.offsets, off)
	return nil
}

// AppendValueWithoutOffset stores data without assigning it to a document
// and returns its offset. With uniq encode, data already stored is not
// written again. h only narrows the lookup; items are compared by content.
func (w *Writer) AppendValueWithoutOffset(data []byte, h uint64) (uint64, error) {
	if w.intern != nil {
		for _, it := range w.intern[h] {
			if bytes.Equal(it.data, data) {
				return it.off, nil
			}
		}
	}
	off, err := w.writeItem(data)
	if err != nil {
		return 0, err
	}
	if w.intern != nil {
		w.intern[h] = append(w.intern[h], internedItem{off: off, data: bytes.Clone(data)})
	}
	return off, nil
}

// AppendRawValue appends data for the next document bypassing the intern
// table, so the item is neither shared with nor reused by other documents.
func (w *Writer) AppendRawValue(data []byte) error {
	off, err := w.writeItem(data)
	if err != nil {
		return err
	}
	w.offsets = append(w.offsets, off)
	return nil
}

// AppendOffset appends a document whose value is stored at offset and
// returns its position.
func (w *Writer) AppendOffset(offset uint64) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	w.offsets = append(w.offsets, offset)
	return len(w.offsets) - 1, nil
}

// SetOffset overwrites the offset at pos.
func (w *Writer) SetOffset(pos int, offset uint64) error {
	if pos < 0 || pos >= len(w.offsets) {
		return status.InvalidArgsf("offset position %d out of range [0, %d)", pos, len(w.offsets))
	}
	w.offsets[pos] = offset
	return nil
}

func (w *Writer) writeItem(data []byte) (uint64, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	if w.out == nil {
		return 0, status.InvalidArgsf("writer not initialized")
	}
	off := w.dataLen
	if w.param.AppendDataItemLength {
		n := binary.PutUvarint(w.lenBuf[:], uint64(len(data)))
		if _, err := w.out.Write(w.lenBuf[:n]); err != nil {
			return 0, status.IOError(err, "write item length")
		}
		w.dataLen += uint64(n)
	}
	if _, err := w.out.Write(data); err != nil {
		return 0, status.IOError(err, "write item")
	}
	w.dataLen += uint64(len(data))
	w.maxItemLen = max(w.maxItemLen, uint32(len(data)))
	w.dataItemCount++
	return off, nil
}

// Close finishes the data file and writes the offset file. It must be
// called exactly once; the data file is closed even if flushing fails.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.blob == nil {
		return nil
	}

	var err error
	if w.cw != nil {
		err = status.IOError(w.cw.Close(), "finish compressed data in %s", w.dir)
	}
	if cerr := w.blob.Close(); err == nil {
		err = status.IOError(cerr, "close data in %s", w.dir)
	}
	if err != nil {
		return err
	}

	offsets := w.offsets
	var flags byte
	maxOffset := uint64(0)
	for _, off := range offsets {
		maxOffset = max(maxOffset, off)
	}
	if !w.param.DisableGuardOffset {
		offsets = append(offsets, w.dataLen)
		maxOffset = max(maxOffset, w.dataLen)
		flags |= flagGuard
	}
	if w.param.EqualCompressOffset {
		flags |= flagEqualCompressed
	}
	data := encodeOffsets(offsets, offsetWidth(w.param, maxOffset), flags)
	return status.IOError(w.dir.WriteFile(w.ctx, w.offsetFile, data), "write %s in %s", w.offsetFile, w.dir)
}

// MaxItemLen returns the length of the longest stored item.
func (w *Writer) MaxItemLen() uint32 { return w.maxItemLen }

// DataItemCount returns the number of physically stored items.
func (w *Writer) DataItemCount() uint32 { return w.dataItemCount }

// OffsetCount returns the number of documents, excluding the guard.
func (w *Writer) OffsetCount() int { return len(w.offsets) }

// DataLength returns the uncompressed data length.
func (w *Writer) DataLength() uint64 { return w.dataLen }
