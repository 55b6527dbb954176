package attribute

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/hupe1980/indexmerge/status"
)

// Fixed is the set of fixed-width value types.
type Fixed interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// Element is the set of element types of variable-length attributes.
type Element interface {
	Fixed | string
}

func sizeOf[T Fixed]() int {
	var v T
	return binary.Size(v)
}

func appendFixed[T Fixed](dst []byte, v T) []byte {
	out, _ := binary.Append(dst, binary.LittleEndian, v)
	return out
}

func decodeFixed[T Fixed](src []byte) T {
	var v T
	_, _ = binary.Decode(src, binary.LittleEndian, &v)
	return v
}

// toBits zero-extends the little endian encoding of v.
func toBits[T Fixed](v T) uint64 {
	var b [8]byte
	appendFixed(b[:0], v)
	return binary.LittleEndian.Uint64(b[:])
}

func fromBits[T Fixed](u uint64) T {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], u)
	return decodeFixed[T](b[:])
}

func parseFixed[T Fixed](s string) (T, error) {
	var zero T
	s = strings.TrimSpace(s)
	if s == "" {
		return zero, nil
	}
	bits := sizeOf[T]() * 8
	var (
		v   any
		err error
	)
	switch any(zero).(type) {
	case float32, float64:
		var f float64
		f, err = strconv.ParseFloat(s, bits)
		if bits == 32 {
			v = float32(f)
		} else {
			v = f
		}
	case uint8, uint16, uint32, uint64:
		var u uint64
		u, err = strconv.ParseUint(s, 10, bits)
		v = fromBits[T](u)
	default:
		var i int64
		i, err = strconv.ParseInt(s, 10, bits)
		v = fromBits[T](uint64(i))
	}
	if err != nil {
		return zero, status.InvalidArgsf("parse %q: %v", s, err)
	}
	return v.(T), nil
}

// EncodeMulti encodes a multi-value numeric value as [uvarint n][n values].
func EncodeMulti[T Fixed](values []T) []byte {
	out := binary.AppendUvarint(make([]byte, 0, binary.MaxVarintLen32+len(values)*sizeOf[T]()), uint64(len(values)))
	for _, v := range values {
		out = appendFixed(out, v)
	}
	return out
}

// DecodeMulti decodes a value written by EncodeMulti.
func DecodeMulti[T Fixed](data []byte) ([]T, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 {
		return nil, status.Corruptionf("multi value: bad count")
	}
	size := sizeOf[T]()
	data = data[k:]
	if uint64(len(data)) != n*uint64(size) {
		return nil, status.Corruptionf("multi value: %d bytes for %d values", len(data), n)
	}
	out := make([]T, n)
	for i := range out {
		out[i] = decodeFixed[T](data[i*size:])
	}
	return out, nil
}

// EncodeStrings encodes a multi-value string as [uvarint n]{[uvarint len][bytes]}.
func EncodeStrings(values []string) []byte {
	out := binary.AppendUvarint(nil, uint64(len(values)))
	for _, s := range values {
		out = binary.AppendUvarint(out, uint64(len(s)))
		out = append(out, s...)
	}
	return out
}

// DecodeStrings decodes a value written by EncodeStrings.
func DecodeStrings(data []byte) ([]string, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 || n > uint64(len(data)) {
		return nil, status.Corruptionf("multi string: bad count")
	}
	data = data[k:]
	out := make([]string, 0, n)
	for range n {
		l, k := binary.Uvarint(data)
		if k <= 0 || l > uint64(len(data)-k) {
			return nil, status.Corruptionf("multi string: bad length")
		}
		out = append(out, string(data[k:k+int(l)]))
		data = data[k+int(l):]
	}
	if len(data) != 0 {
		return nil, status.Corruptionf("multi string: %d trailing bytes", len(data))
	}
	return out, nil
}

// encodeDefault returns the stored form of a variable-length default
// value. Multi values are separated by ','.
func encodeDefault[T Element](def string, multi bool) ([]byte, error) {
	var zero T
	_, isString := any(zero).(string)
	if !multi {
		if isString {
			return []byte(def), nil
		}
		return nil, status.InvalidArgsf("single-value %T is not variable length", zero)
	}
	var parts []string
	if strings.TrimSpace(def) != "" {
		parts = strings.Split(def, ",")
	}
	if isString {
		return EncodeStrings(parts), nil
	}
	return encodeMultiDefault[T](parts)
}

func encodeMultiDefault[T Element](parts []string) ([]byte, error) {
	var zero T
	switch any(zero).(type) {
	case int8:
		return encodeParsed[int8](parts)
	case uint8:
		return encodeParsed[uint8](parts)
	case int16:
		return encodeParsed[int16](parts)
	case uint16:
		return encodeParsed[uint16](parts)
	case int32:
		return encodeParsed[int32](parts)
	case uint32:
		return encodeParsed[uint32](parts)
	case int64:
		return encodeParsed[int64](parts)
	case uint64:
		return encodeParsed[uint64](parts)
	case float32:
		return encodeParsed[float32](parts)
	case float64:
		return encodeParsed[float64](parts)
	}
	return nil, status.Unimplementedf("element type %T", zero)
}

func encodeParsed[T Fixed](parts []string) ([]byte, error) {
	values := make([]T, len(parts))
	for i, p := range parts {
		v, err := parseFixed[T](p)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return EncodeMulti(values), nil
}
