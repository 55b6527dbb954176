package varlen

import (
	"github.com/hupe1980/indexmerge/internal/compress"
	"github.com/hupe1980/indexmerge/status"
)

// DefaultOffsetThreshold is the largest offset stored in 4 bytes by
// adaptive offsets.
const DefaultOffsetThreshold = 0xFFFFFFFF

// Param configures the layout of a column. Reader and writer of a column
// must use the same Param.
type Param struct {
	// EnableAdaptiveOffset stores offsets in 4 bytes while they fit under
	// OffsetThreshold. Without it offsets take 8 bytes.
	EnableAdaptiveOffset bool
	EqualCompressOffset  bool
	DataItemUniqEncode   bool
	AppendDataItemLength bool
	DisableGuardOffset   bool
	OffsetThreshold      uint64

	DataCompressor     string
	CompressBufferSize int
	CompressLevel      int
}

// Validate checks the parameter combination.
func (p Param) Validate() error {
	if !compress.Supported(p.DataCompressor) {
		return status.InvalidArgsf("unknown compressor %q", p.DataCompressor)
	}
	if p.DataCompressor != "" && p.CompressBufferSize != 0 && !compress.IsPowerOfTwo(p.CompressBufferSize) {
		return status.InvalidArgsf("compress buffer size %d is not a power of two", p.CompressBufferSize)
	}
	if p.DataItemUniqEncode && !p.AppendDataItemLength {
		return status.InvalidArgsf("uniq encode requires appended item length")
	}
	if p.DisableGuardOffset && !p.AppendDataItemLength {
		return status.InvalidArgsf("disabled guard offset requires appended item length")
	}
	if p.OffsetThreshold > DefaultOffsetThreshold {
		return status.InvalidArgsf("offset threshold %d does not fit 4 byte offsets", p.OffsetThreshold)
	}
	return nil
}

// threshold never exceeds what a 4 byte offset can hold.
func (p Param) threshold() uint64 {
	if p.OffsetThreshold == 0 {
		return DefaultOffsetThreshold
	}
	return min(p.OffsetThreshold, DefaultOffsetThreshold)
}

func (p Param) bufferSize() int {
	if p.CompressBufferSize == 0 {
		return compress.DefaultBufferSize
	}
	return p.CompressBufferSize
}
