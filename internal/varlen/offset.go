package varlen

import (
	"encoding/binary"

	"github.com/hupe1980/indexmerge/internal/equalcompress"
	"github.com/hupe1980/indexmerge/status"
)

const (
	offsetMagic      = 0x464f4c56 // "VLOF"
	offsetVersion    = 1
	offsetHeaderSize = 16

	flagEqualCompressed = 1 << 0
	flagGuard           = 1 << 1
)

func offsetWidth(p Param, maxOffset uint64) int {
	if p.EnableAdaptiveOffset && maxOffset <= p.threshold() {
		return 4
	}
	return 8
}

func encodeOffsets(offsets []uint64, width int, flags byte) []byte {
	out := make([]byte, offsetHeaderSize, offsetHeaderSize+len(offsets)*width)
	binary.LittleEndian.PutUint32(out[0:], offsetMagic)
	out[4] = offsetVersion
	out[5] = byte(width)
	out[6] = flags
	binary.LittleEndian.PutUint64(out[8:], uint64(len(offsets)))

	if flags&flagEqualCompressed != 0 {
		return append(out, equalcompress.Encode(offsets)...)
	}
	for _, off := range offsets {
		if width == 4 {
			out = binary.LittleEndian.AppendUint32(out, uint32(off))
		} else {
			out = binary.LittleEndian.AppendUint64(out, off)
		}
	}
	return out
}

func decodeOffsets(data []byte) ([]uint64, byte, error) {
	if len(data) < offsetHeaderSize {
		return nil, 0, status.Corruptionf("offset file: short header")
	}
	if magic := binary.LittleEndian.Uint32(data[0:]); magic != offsetMagic {
		return nil, 0, status.Corruptionf("offset file: invalid magic: %x", magic)
	}
	if data[4] != offsetVersion {
		return nil, 0, status.Corruptionf("offset file: unsupported version: %d", data[4])
	}
	width := int(data[5])
	flags := data[6]
	count := binary.LittleEndian.Uint64(data[8:])
	body := data[offsetHeaderSize:]

	if flags&flagEqualCompressed != 0 {
		dec, err := equalcompress.NewDecoder(body)
		if err != nil {
			return nil, 0, status.Corruptionf("offset file: %v", err)
		}
		if uint64(dec.Len()) != count {
			return nil, 0, status.Corruptionf("offset file: %d offsets, header says %d", dec.Len(), count)
		}
		offsets, err := dec.DecodeAll()
		if err != nil {
			return nil, 0, status.Corruptionf("offset file: %v", err)
		}
		return offsets, flags, nil
	}

	if width != 4 && width != 8 {
		return nil, 0, status.Corruptionf("offset file: bad width %d", width)
	}
	if uint64(len(body)) != count*uint64(width) {
		return nil, 0, status.Corruptionf("offset file: body %d bytes, want %d", len(body), count*uint64(width))
	}
	offsets := make([]uint64, count)
	for i := range offsets {
		if width == 4 {
			offsets[i] = uint64(binary.LittleEndian.Uint32(body[i*4:]))
		} else {
			offsets[i] = binary.LittleEndian.Uint64(body[i*8:])
		}
	}
	return offsets, flags, nil
}
