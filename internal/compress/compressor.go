package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor names.
const (
	None   = ""
	Snappy = "snappy"
	LZ4    = "lz4"
	LZ4HC  = "lz4hc"
	Zlib   = "zlib"
	Zstd   = "zstd"
)

// ErrUnknownCompressor is returned for an unsupported compressor name.
var ErrUnknownCompressor = errors.New("unknown compressor")

// Compressor compresses independent blocks.
// Implementations must be safe for concurrent use.
type Compressor interface {
	Name() string
	// Compress returns the compressed form of src. A nil result with a nil
	// error means src is incompressible and should be stored raw.
	Compress(src []byte) ([]byte, error)
	// Decompress decodes src into a buffer of exactly rawLen bytes.
	Decompress(src []byte, rawLen int) ([]byte, error)
}

// Supported reports whether name is a known compressor name (or empty).
func Supported(name string) bool {
	switch name {
	case None, Snappy, LZ4, LZ4HC, Zlib, Zstd:
		return true
	default:
		return false
	}
}

// ByName returns the compressor for name. level is only used by zlib and zstd;
// zero selects the library default. ByName returns nil for the empty name.
func ByName(name string, level int) (Compressor, error) {
	switch name {
	case None:
		return nil, nil
	case Snappy:
		return snappyCompressor{}, nil
	case LZ4:
		return lz4Compressor{}, nil
	case LZ4HC:
		return lz4Compressor{hc: true}, nil
	case Zlib:
		if level == 0 {
			level = zlib.DefaultCompression
		}
		return zlibCompressor{level: level}, nil
	case Zstd:
		return newZstdCompressor(level), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompressor, name)
	}
}

type snappyCompressor struct{}

func (snappyCompressor) Name() string { return Snappy }

func (snappyCompressor) Compress(src []byte) ([]byte, error) {
	return s2.EncodeSnappy(nil, src), nil
}

func (snappyCompressor) Decompress(src []byte, rawLen int) ([]byte, error) {
	out, err := s2.Decode(make([]byte, rawLen), src)
	if err != nil {
		return nil, err
	}
	if len(out) != rawLen {
		return nil, errSizeMismatch
	}
	return out, nil
}

type lz4Compressor struct {
	hc bool
}

func (c lz4Compressor) Name() string {
	if c.hc {
		return LZ4HC
	}
	return LZ4
}

func (c lz4Compressor) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var (
		n   int
		err error
	)
	if c.hc {
		n, err = lz4.CompressBlockHC(src, dst, lz4.Level9, nil, nil)
	} else {
		n, err = lz4.CompressBlock(src, dst, nil)
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return dst[:n], nil
}

func (lz4Compressor) Decompress(src []byte, rawLen int) ([]byte, error) {
	out := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(src, out)
	if err != nil {
		return nil, err
	}
	if n != rawLen {
		return nil, errSizeMismatch
	}
	return out, nil
}

type zlibCompressor struct {
	level int
}

func (zlibCompressor) Name() string { return Zlib }

func (c zlibCompressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (zlibCompressor) Decompress(src []byte, rawLen int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	out := make([]byte, rawLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// zstd encoders and decoders are expensive to build; keep them pooled.
type zstdCompressor struct {
	level   zstd.EncoderLevel
	encPool *sync.Pool
}

var zstdDecoderPool sync.Pool

func newZstdCompressor(level int) zstdCompressor {
	lvl := zstd.SpeedDefault
	if level != 0 {
		lvl = zstd.EncoderLevelFromZstd(level)
	}
	c := zstdCompressor{level: lvl, encPool: &sync.Pool{}}
	return c
}

func (zstdCompressor) Name() string { return Zstd }

func (c zstdCompressor) Compress(src []byte) ([]byte, error) {
	var enc *zstd.Encoder
	if v := c.encPool.Get(); v != nil {
		enc = v.(*zstd.Encoder)
	} else {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
		if err != nil {
			return nil, err
		}
	}
	defer c.encPool.Put(enc)
	return enc.EncodeAll(src, nil), nil
}

func (zstdCompressor) Decompress(src []byte, rawLen int) ([]byte, error) {
	var dec *zstd.Decoder
	if v := zstdDecoderPool.Get(); v != nil {
		dec = v.(*zstd.Decoder)
	} else {
		var err error
		dec, err = zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
	}
	defer zstdDecoderPool.Put(dec)

	out, err := dec.DecodeAll(src, make([]byte, 0, rawLen))
	if err != nil {
		return nil, err
	}
	if len(out) != rawLen {
		return nil, errSizeMismatch
	}
	return out, nil
}

var errSizeMismatch = errors.New("decompressed size mismatch")
