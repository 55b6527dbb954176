// Package equalcompress implements the equal-value compression used for
// offset arrays and single-value attribute columns.
//
// Values are grouped into fixed blocks of 64. Each block stores its minimum
// value and the bit width of the largest delta from it; a block of identical
// values therefore costs only its base value. Blocks are indexed so single
// elements can be decoded without scanning the stream.
package equalcompress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

const (
	magic      = 0x50435145 // "EQCP"
	headerSize = 4 + 8 + 4 + 4

	// BlockSize is the number of values per block.
	BlockSize = 64
)

// ErrCorrupt is returned when a stream fails validation.
var ErrCorrupt = errors.New("equalcompress: corrupt stream")

// Encode compresses values.
func Encode(values []uint64) []byte {
	numBlocks := (len(values) + BlockSize - 1) / BlockSize

	out := make([]byte, headerSize, headerSize+numBlocks*4+len(values))
	binary.LittleEndian.PutUint32(out[0:], magic)
	binary.LittleEndian.PutUint64(out[4:], uint64(len(values)))
	binary.LittleEndian.PutUint32(out[12:], BlockSize)
	binary.LittleEndian.PutUint32(out[16:], uint32(numBlocks))

	indexStart := len(out)
	out = append(out, make([]byte, numBlocks*4)...)
	blocksStart := len(out)

	for b := 0; b < numBlocks; b++ {
		binary.LittleEndian.PutUint32(out[indexStart+b*4:], uint32(len(out)-blocksStart))
		block := values[b*BlockSize : min((b+1)*BlockSize, len(values))]
		out = appendBlock(out, block)
	}
	return out
}

func appendBlock(out []byte, block []uint64) []byte {
	base := block[0]
	for _, v := range block {
		base = min(base, v)
	}
	var maxDelta uint64
	for _, v := range block {
		maxDelta = max(maxDelta, v-base)
	}
	width := bits.Len64(maxDelta)

	out = binary.LittleEndian.AppendUint64(out, base)
	out = append(out, byte(width))
	if width == 0 {
		return out
	}

	packed := make([]byte, (len(block)*width+7)/8)
	bitPos := 0
	for _, v := range block {
		d := v - base
		for i := 0; i < width; i++ {
			if d&(1<<uint(i)) != 0 {
				packed[bitPos>>3] |= 1 << uint(bitPos&7)
			}
			bitPos++
		}
	}
	return append(out, packed...)
}

// Decoder gives random access to an encoded stream.
// It is not safe for concurrent use.
type Decoder struct {
	data        []byte
	count       int
	blockIndex  []byte
	blocksStart int

	cachedBlock  int
	cachedValues [BlockSize]uint64
}

// NewDecoder validates the stream header. data is retained, not copied.
func NewDecoder(data []byte) (*Decoder, error) {
	if len(data) < headerSize || binary.LittleEndian.Uint32(data[0:]) != magic {
		return nil, ErrCorrupt
	}
	count := binary.LittleEndian.Uint64(data[4:])
	if binary.LittleEndian.Uint32(data[12:]) != BlockSize {
		return nil, fmt.Errorf("%w: unexpected block size", ErrCorrupt)
	}
	numBlocks := int(binary.LittleEndian.Uint32(data[16:]))
	if uint64(numBlocks) != (count+BlockSize-1)/BlockSize {
		return nil, fmt.Errorf("%w: block count mismatch", ErrCorrupt)
	}
	if len(data) < headerSize+numBlocks*4 {
		return nil, fmt.Errorf("%w: truncated index", ErrCorrupt)
	}
	return &Decoder{
		data:        data,
		count:       int(count),
		blockIndex:  data[headerSize : headerSize+numBlocks*4],
		blocksStart: headerSize + numBlocks*4,
		cachedBlock: -1,
	}, nil
}

// Len returns the number of encoded values.
func (d *Decoder) Len() int { return d.count }

// Get returns the i-th value.
func (d *Decoder) Get(i int) (uint64, error) {
	if i < 0 || i >= d.count {
		return 0, fmt.Errorf("equalcompress: index %d out of range [0,%d)", i, d.count)
	}
	b := i / BlockSize
	if b != d.cachedBlock {
		if err := d.decodeBlock(b); err != nil {
			return 0, err
		}
	}
	return d.cachedValues[i%BlockSize], nil
}

// DecodeAll returns every value.
func (d *Decoder) DecodeAll() ([]uint64, error) {
	out := make([]uint64, d.count)
	for i := range out {
		v, err := d.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *Decoder) decodeBlock(b int) error {
	pos := d.blocksStart + int(binary.LittleEndian.Uint32(d.blockIndex[b*4:]))
	if pos+9 > len(d.data) {
		return fmt.Errorf("%w: block %d truncated", ErrCorrupt, b)
	}
	base := binary.LittleEndian.Uint64(d.data[pos:])
	width := int(d.data[pos+8])
	if width > 64 {
		return fmt.Errorf("%w: block %d width %d", ErrCorrupt, b, width)
	}
	n := min(BlockSize, d.count-b*BlockSize)
	packed := d.data[pos+9:]
	if len(packed) < (n*width+7)/8 {
		return fmt.Errorf("%w: block %d truncated", ErrCorrupt, b)
	}

	bitPos := 0
	for j := 0; j < n; j++ {
		var delta uint64
		for k := 0; k < width; k++ {
			if packed[bitPos>>3]&(1<<uint(bitPos&7)) != 0 {
				delta |= 1 << uint(k)
			}
			bitPos++
		}
		d.cachedValues[j] = base + delta
	}
	d.cachedBlock = b
	return nil
}
