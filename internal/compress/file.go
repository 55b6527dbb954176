package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/hupe1980/indexmerge/internal/hash"
	"github.com/hupe1980/indexmerge/status"
)

const (
	fileMagic       = 0x46525043 // "CPRF"
	blockHeaderSize = 8
	// trailer: footer length (4) + magic (4)
	trailerSize = 8

	// DefaultBufferSize is the uncompressed block size used when none is configured.
	DefaultBufferSize = 4 * 1024
)

var (
	// ErrBadBufferSize is returned when a block size is not a power of two.
	ErrBadBufferSize = errors.New("compress buffer size must be a power of two")
	// ErrCorruptFile is returned when a compressed file fails validation.
	// It carries status.ErrCorruption through every layer that wraps it.
	ErrCorruptFile = fmt.Errorf("%w: compressed file", status.ErrCorruption)
)

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}

// Writer writes a block-compressed file.
//
// Block format: [RawSize uint32][CompressedSize uint32][Data...]
// CompressedSize == 0 means the block is stored uncompressed.
//
// Footer: [NameLen uint8][Name][BlockSize uint32][RawSize uint64][N uint32]
// [BlockOffset uint64]*N [CRC32C uint32] followed by the trailer
// [FooterLen uint32][Magic uint32].
type Writer struct {
	w         io.Writer
	c         Compressor
	blockSize int

	buf     []byte
	offsets []uint64
	written uint64 // compressed bytes written
	raw     uint64 // uncompressed bytes accepted
	closed  bool
}

// NewWriter creates a block-compressed file writer over w.
func NewWriter(w io.Writer, c Compressor, blockSize int) (*Writer, error) {
	if c == nil {
		return nil, errors.New("compress: nil compressor")
	}
	if blockSize == 0 {
		blockSize = DefaultBufferSize
	}
	if !IsPowerOfTwo(blockSize) {
		return nil, fmt.Errorf("%w: %d", ErrBadBufferSize, blockSize)
	}
	return &Writer{
		w:         w,
		c:         c,
		blockSize: blockSize,
		buf:       make([]byte, 0, blockSize),
	}, nil
}

// Write appends uncompressed bytes, flushing full blocks.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("compress: write after close")
	}
	total := 0
	for len(p) > 0 {
		space := w.blockSize - len(w.buf)
		n := min(space, len(p))
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
		total += n
		w.raw += uint64(n)
		if len(w.buf) == w.blockSize {
			if err := w.flushBlock(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Size returns the number of uncompressed bytes written so far.
func (w *Writer) Size() uint64 { return w.raw }

func (w *Writer) flushBlock() error {
	if len(w.buf) == 0 {
		return nil
	}
	compressed, err := w.c.Compress(w.buf)
	if err != nil {
		return err
	}

	var header [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:], uint32(len(w.buf)))
	payload := w.buf
	// Keep the raw block when compression does not pay off.
	if compressed != nil && len(compressed) < len(w.buf) {
		binary.LittleEndian.PutUint32(header[4:], uint32(len(compressed)))
		payload = compressed
	}

	w.offsets = append(w.offsets, w.written)
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	w.written += uint64(blockHeaderSize + len(payload))
	w.buf = w.buf[:0]
	return nil
}

// Close flushes the last block and writes the footer. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if err := w.flushBlock(); err != nil {
		return err
	}
	w.closed = true

	name := w.c.Name()
	footer := make([]byte, 0, 1+len(name)+4+8+4+len(w.offsets)*8+4+trailerSize)
	footer = append(footer, byte(len(name)))
	footer = append(footer, name...)
	footer = binary.LittleEndian.AppendUint32(footer, uint32(w.blockSize))
	footer = binary.LittleEndian.AppendUint64(footer, w.raw)
	footer = binary.LittleEndian.AppendUint32(footer, uint32(len(w.offsets)))
	for _, off := range w.offsets {
		footer = binary.LittleEndian.AppendUint64(footer, off)
	}
	footer = binary.LittleEndian.AppendUint32(footer, hash.CRC32C(footer))
	footer = binary.LittleEndian.AppendUint32(footer, uint32(len(footer)))
	footer = binary.LittleEndian.AppendUint32(footer, fileMagic)

	_, err := w.w.Write(footer)
	return err
}

// Reader provides random access to the uncompressed content of a
// block-compressed file. It is not safe for concurrent use.
type Reader struct {
	r         io.ReaderAt
	c         Compressor
	blockSize int
	offsets   []uint64
	dataEnd   uint64
	raw       uint64

	// single decoded block cache; merges read mostly sequentially
	cachedIdx  int
	cachedData []byte
}

// NewReader opens a block-compressed file of size bytes. The compressor is
// resolved from the footer; expect, if non-empty, must match it.
func NewReader(r io.ReaderAt, size int64, expect string) (*Reader, error) {
	if size < trailerSize {
		return nil, fmt.Errorf("%w: file too small", ErrCorruptFile)
	}
	var trailer [trailerSize]byte
	if _, err := r.ReadAt(trailer[:], size-trailerSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if binary.LittleEndian.Uint32(trailer[4:]) != fileMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptFile)
	}
	footerLen := int64(binary.LittleEndian.Uint32(trailer[0:]))
	const minFooter = 1 + 4 + 8 + 4 + 4
	if footerLen < minFooter || footerLen > size-trailerSize {
		return nil, fmt.Errorf("%w: bad footer length %d", ErrCorruptFile, footerLen)
	}
	footerStart := size - trailerSize - footerLen
	footer := make([]byte, footerLen)
	if _, err := r.ReadAt(footer, footerStart); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body := footer[:len(footer)-4]
	if hash.CRC32C(body) != binary.LittleEndian.Uint32(footer[len(footer)-4:]) {
		return nil, fmt.Errorf("%w: footer checksum mismatch", ErrCorruptFile)
	}

	nameLen := int(body[0])
	if 1+nameLen+16 > len(body) {
		return nil, fmt.Errorf("%w: footer truncated", ErrCorruptFile)
	}
	name := string(body[1 : 1+nameLen])
	p := body[1+nameLen:]
	blockSize := int(binary.LittleEndian.Uint32(p[0:]))
	raw := binary.LittleEndian.Uint64(p[4:])
	n := int(binary.LittleEndian.Uint32(p[12:]))
	p = p[16:]
	if len(p) != n*8 {
		return nil, fmt.Errorf("%w: block index size mismatch", ErrCorruptFile)
	}
	if expect != "" && expect != name {
		return nil, fmt.Errorf("%w: compressor %q, expected %q", ErrCorruptFile, name, expect)
	}
	if !IsPowerOfTwo(blockSize) {
		return nil, fmt.Errorf("%w: %d", ErrBadBufferSize, blockSize)
	}
	c, err := ByName(name, 0)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: missing compressor name", ErrCorruptFile)
	}

	offsets := make([]uint64, n)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(p[i*8:])
	}
	return &Reader{
		r:         r,
		c:         c,
		blockSize: blockSize,
		offsets:   offsets,
		dataEnd:   uint64(footerStart),
		raw:       raw,
		cachedIdx: -1,
	}, nil
}

// Size returns the uncompressed size of the file.
func (r *Reader) Size() int64 { return int64(r.raw) }

// Compressor returns the name of the compressor the file was written with.
func (r *Reader) Compressor() string { return r.c.Name() }

// ReadAt reads uncompressed bytes starting at uncompressed offset off.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("compress: negative offset %d", off)
	}
	total := 0
	for len(p) > 0 {
		if uint64(off) >= r.raw {
			return total, io.EOF
		}
		idx := int(off / int64(r.blockSize))
		block, err := r.block(idx)
		if err != nil {
			return total, err
		}
		inBlock := int(off % int64(r.blockSize))
		if inBlock >= len(block) {
			return total, fmt.Errorf("%w: block %d ends before offset %d", ErrCorruptFile, idx, off)
		}
		n := copy(p, block[inBlock:])
		p = p[n:]
		total += n
		off += int64(n)
	}
	return total, nil
}

func (r *Reader) block(idx int) ([]byte, error) {
	if idx == r.cachedIdx {
		return r.cachedData, nil
	}
	if idx >= len(r.offsets) {
		return nil, io.EOF
	}
	start := r.offsets[idx]
	end := r.dataEnd
	if idx+1 < len(r.offsets) {
		end = r.offsets[idx+1]
	}
	if end < start+blockHeaderSize {
		return nil, fmt.Errorf("%w: block %d truncated", ErrCorruptFile, idx)
	}
	buf := make([]byte, end-start)
	if _, err := r.r.ReadAt(buf, int64(start)); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	rawLen := int(binary.LittleEndian.Uint32(buf[0:]))
	compLen := int(binary.LittleEndian.Uint32(buf[4:]))
	payload := buf[blockHeaderSize:]
	// Every block but the last holds exactly blockSize bytes.
	want := uint64(r.blockSize)
	if rest := r.raw - uint64(idx)*uint64(r.blockSize); rest < want {
		want = rest
	}
	if uint64(rawLen) != want {
		return nil, fmt.Errorf("%w: block %d holds %d bytes, expected %d", ErrCorruptFile, idx, rawLen, want)
	}

	var data []byte
	if compLen == 0 {
		if len(payload) < rawLen {
			return nil, fmt.Errorf("%w: block %d short", ErrCorruptFile, idx)
		}
		data = payload[:rawLen]
	} else {
		if len(payload) < compLen {
			return nil, fmt.Errorf("%w: block %d short", ErrCorruptFile, idx)
		}
		var err error
		data, err = r.c.Decompress(payload[:compLen], rawLen)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrCorruptFile, idx, err)
		}
		if len(data) != rawLen {
			return nil, fmt.Errorf("%w: block %d decoded to %d bytes, expected %d", ErrCorruptFile, idx, len(data), rawLen)
		}
	}
	r.cachedIdx = idx
	r.cachedData = data
	return data, nil
}
