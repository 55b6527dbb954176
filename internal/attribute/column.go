package attribute

import (
	"context"
	"encoding/binary"
	"errors"
	"io"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/internal/compress"
	"github.com/hupe1980/indexmerge/internal/equalcompress"
	"github.com/hupe1980/indexmerge/resource"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// Single-value column file:
//
//	values: Count little endian values of Width bytes, or an equal-value
//	        compressed stream of the zero-extended values (flag bit 0)
//	trailer: [Count uint64][Width uint8][Flags uint8][pad uint16][Magic uint32]
//
// The whole file is optionally block compressed. Nullable columns keep the
// null doc ids in a roaring bitmap next to the data.
const (
	columnMagic       = 0x54415653 // "SVAT"
	columnTrailerSize = 16
	columnFlagEqual   = 1 << 0

	appendBufferSize = 64 * 1024
)

type columnOptions struct {
	width    int
	equal    bool
	nullable bool
	compress *config.FileCompressConfig
}

func newColumnOptions[T Fixed](cfg *config.AttributeConfig) columnOptions {
	return columnOptions{
		width:    sizeOf[T](),
		equal:    cfg.IsEqualCompress(),
		nullable: cfg.Nullable,
		compress: cfg.FileCompress,
	}
}

// columnWriter buffers fixed-size values and flushes full buffers. With
// equal compression values are kept until Close and dumped at once.
type columnWriter struct {
	ctx  context.Context
	dir  blobstore.Dir
	opts columnOptions

	blob blobstore.WritableBlob
	out  io.Writer
	cw   *compress.Writer

	buf    []byte
	values []uint64
	count  uint64
	nulls  *roaring.Bitmap
	closed bool
}

func newColumnWriter(ctx context.Context, dir blobstore.Dir, opts columnOptions, rc *resource.Controller) (*columnWriter, error) {
	blob, err := dir.Create(ctx, segment.DataFile)
	if err != nil {
		return nil, status.IOError(err, "create column in %s", dir)
	}
	w := &columnWriter{
		ctx:  ctx,
		dir:  dir,
		opts: opts,
		blob: blob,
		out:  resource.NewRateLimitedWriter(ctx, blob, rc),
	}
	if opts.compress.Enabled() {
		c, err := compress.ByName(opts.compress.Compressor, opts.compress.Level)
		if err == nil {
			w.cw, err = compress.NewWriter(w.out, c, opts.compress.BlockSize())
		}
		if err != nil {
			_ = blob.Close()
			return nil, status.InvalidArgsf("column compressor: %v", err)
		}
		w.out = w.cw
	}
	if !opts.equal {
		w.buf = make([]byte, 0, appendBufferSize)
	}
	if opts.nullable {
		w.nulls = roaring.New()
	}
	return w, nil
}

func (w *columnWriter) append(bits uint64, isNull bool) error {
	if isNull {
		if w.nulls == nil {
			return status.InvalidArgsf("null value for non-nullable column in %s", w.dir)
		}
		w.nulls.Add(uint32(w.count))
		bits = 0
	}
	w.count++
	if w.opts.equal {
		w.values = append(w.values, bits)
		return nil
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], bits)
	w.buf = append(w.buf, b[:w.opts.width]...)
	if len(w.buf)+w.opts.width > cap(w.buf) {
		return w.flush()
	}
	return nil
}

func (w *columnWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.out.Write(w.buf)
	w.buf = w.buf[:0]
	return status.IOError(err, "write column in %s", w.dir)
}

// Close writes the remaining values, the trailer, the null bitmap and the
// data info. The data file is closed even if writing fails.
func (w *columnWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.finish()
	if cerr := w.blob.Close(); err == nil {
		err = status.IOError(cerr, "close column in %s", w.dir)
	}
	if err != nil {
		return err
	}
	if w.nulls != nil {
		w.nulls.RunOptimize()
		data, err := w.nulls.ToBytes()
		if err != nil {
			return err
		}
		if err := w.dir.WriteFile(w.ctx, segment.NullFile, data); err != nil {
			return status.IOError(err, "write null bitmap in %s", w.dir)
		}
	}
	return StoreDataInfo(w.ctx, w.dir, DataInfo{
		UniqItemCount: uint32(w.count),
		MaxItemLength: uint32(w.opts.width),
	})
}

func (w *columnWriter) finish() error {
	var flags byte
	if w.opts.equal {
		flags |= columnFlagEqual
		if _, err := w.out.Write(equalcompress.Encode(w.values)); err != nil {
			return status.IOError(err, "write column in %s", w.dir)
		}
		w.values = nil
	} else if err := w.flush(); err != nil {
		return err
	}

	var trailer [columnTrailerSize]byte
	binary.LittleEndian.PutUint64(trailer[0:], w.count)
	trailer[8] = byte(w.opts.width)
	trailer[9] = flags
	binary.LittleEndian.PutUint32(trailer[12:], columnMagic)
	if _, err := w.out.Write(trailer[:]); err != nil {
		return status.IOError(err, "write column in %s", w.dir)
	}
	if w.cw != nil {
		return status.IOError(w.cw.Close(), "finish compressed column in %s", w.dir)
	}
	return nil
}

// column reads a single-value column.
type column struct {
	blob  blobstore.Blob
	r     io.ReaderAt
	width int
	count uint64
	dec   *equalcompress.Decoder
	nulls *roaring.Bitmap
	buf   [8]byte
}

func openColumn(ctx context.Context, dir blobstore.Dir, opts columnOptions) (*column, error) {
	blob, err := dir.Open(ctx, segment.DataFile)
	if err != nil {
		return nil, status.IOError(err, "open column in %s", dir)
	}
	c, err := readColumn(ctx, dir, blob, opts)
	if err != nil {
		_ = blob.Close()
		return nil, err
	}
	return c, nil
}

func readColumn(ctx context.Context, dir blobstore.Dir, blob blobstore.Blob, opts columnOptions) (*column, error) {
	c := &column{blob: blob, r: blobstore.NewReaderAt(ctx, blob)}
	size := blob.Size()
	if opts.compress.Enabled() {
		cr, err := compress.NewReader(c.r, size, opts.compress.Compressor)
		if err != nil {
			return nil, status.Corruptionf("column in %s: %v", dir, err)
		}
		c.r = cr
		size = cr.Size()
	}
	if size < columnTrailerSize {
		return nil, status.Corruptionf("column in %s: file too small", dir)
	}
	var trailer [columnTrailerSize]byte
	if _, err := c.r.ReadAt(trailer[:], size-columnTrailerSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, status.IOError(err, "read column trailer in %s", dir)
	}
	if binary.LittleEndian.Uint32(trailer[12:]) != columnMagic {
		return nil, status.Corruptionf("column in %s: bad magic", dir)
	}
	c.count = binary.LittleEndian.Uint64(trailer[0:])
	c.width = int(trailer[8])
	if c.width != opts.width {
		return nil, status.Corruptionf("column in %s: width %d, want %d", dir, c.width, opts.width)
	}
	body := size - columnTrailerSize

	if trailer[9]&columnFlagEqual != 0 {
		data := make([]byte, body)
		if _, err := c.r.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
			return nil, status.IOError(err, "read column in %s", dir)
		}
		dec, err := equalcompress.NewDecoder(data)
		if err != nil {
			return nil, status.Corruptionf("column in %s: %v", dir, err)
		}
		if uint64(dec.Len()) != c.count {
			return nil, status.Corruptionf("column in %s: %d values, trailer says %d", dir, dec.Len(), c.count)
		}
		c.dec = dec
	} else if uint64(body) != c.count*uint64(c.width) {
		return nil, status.Corruptionf("column in %s: %d bytes for %d values", dir, body, c.count)
	}

	if opts.nullable {
		data, err := dir.ReadFile(ctx, segment.NullFile)
		if err != nil && !blobstore.IsNotFound(err) {
			return nil, status.IOError(err, "read null bitmap in %s", dir)
		}
		c.nulls = roaring.New()
		if err == nil {
			if err := c.nulls.UnmarshalBinary(data); err != nil {
				return nil, status.Corruptionf("null bitmap in %s: %v", dir, err)
			}
		}
	}
	return c, nil
}

// get returns the zero-extended value of doc.
func (c *column) get(doc uint64) (uint64, bool, error) {
	if doc >= c.count {
		return 0, false, status.InvalidArgsf("doc %d out of range [0, %d)", doc, c.count)
	}
	if c.nulls != nil && c.nulls.Contains(uint32(doc)) {
		return 0, true, nil
	}
	if c.dec != nil {
		v, err := c.dec.Get(int(doc))
		if err != nil {
			return 0, false, status.Corruptionf("column: %v", err)
		}
		return v, false, nil
	}
	clear(c.buf[:])
	if _, err := c.r.ReadAt(c.buf[:c.width], int64(doc)*int64(c.width)); err != nil && !errors.Is(err, io.EOF) {
		return 0, false, status.IOError(err, "read doc %d", doc)
	}
	return binary.LittleEndian.Uint64(c.buf[:]), false, nil
}

func (c *column) Close() error {
	if c.blob == nil {
		return nil
	}
	err := c.blob.Close()
	c.blob = nil
	return err
}
