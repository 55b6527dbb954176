package compress

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/indexmerge/status"
)

var allCompressors = []string{Snappy, LZ4, LZ4HC, Zlib, Zstd}

func sampleData(n int) []byte {
	var buf bytes.Buffer
	for i := 0; buf.Len() < n; i++ {
		fmt.Fprintf(&buf, "doc-%d:value-%d;", i%97, i%13)
	}
	return buf.Bytes()[:n]
}

func TestByName(t *testing.T) {
	c, err := ByName(None, 0)
	require.NoError(t, err)
	assert.Nil(t, c)

	for _, name := range allCompressors {
		c, err := ByName(name, 0)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
		assert.True(t, Supported(name))
	}

	_, err = ByName("brotli", 0)
	assert.ErrorIs(t, err, ErrUnknownCompressor)
	assert.False(t, Supported("brotli"))
}

func TestCompressorRoundTrip(t *testing.T) {
	data := sampleData(10_000)
	for _, name := range allCompressors {
		t.Run(name, func(t *testing.T) {
			c, err := ByName(name, 0)
			require.NoError(t, err)

			compressed, err := c.Compress(data)
			require.NoError(t, err)
			require.NotNil(t, compressed)
			assert.Less(t, len(compressed), len(data))

			out, err := c.Decompress(compressed, len(data))
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	assert.True(t, IsPowerOfTwo(1))
	assert.True(t, IsPowerOfTwo(4096))
	assert.False(t, IsPowerOfTwo(0))
	assert.False(t, IsPowerOfTwo(-4))
	assert.False(t, IsPowerOfTwo(3000))
}

func TestFileRoundTrip(t *testing.T) {
	data := sampleData(50_000)
	for _, name := range allCompressors {
		t.Run(name, func(t *testing.T) {
			c, err := ByName(name, 0)
			require.NoError(t, err)

			var buf bytes.Buffer
			w, err := NewWriter(&buf, c, 1024)
			require.NoError(t, err)

			// Write in uneven chunks to cross block boundaries.
			for off := 0; off < len(data); off += 777 {
				end := min(off+777, len(data))
				_, err := w.Write(data[off:end])
				require.NoError(t, err)
			}
			assert.Equal(t, uint64(len(data)), w.Size())
			require.NoError(t, w.Close())

			r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), name)
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), r.Size())
			assert.Equal(t, name, r.Compressor())

			// Random reads spanning blocks.
			for _, off := range []int{0, 1000, 1023, 1024, 4090, 49_990} {
				p := make([]byte, 10)
				n, err := r.ReadAt(p, int64(off))
				require.NoError(t, err)
				assert.Equal(t, 10, n)
				assert.Equal(t, data[off:off+10], p)
			}

			all := make([]byte, len(data))
			_, err = r.ReadAt(all, 0)
			require.NoError(t, err)
			assert.Equal(t, data, all)

			_, err = r.ReadAt(make([]byte, 4), int64(len(data)))
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestFileEmpty(t *testing.T) {
	c, _ := ByName(LZ4, 0)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, c, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.Size())
}

func TestFileValidation(t *testing.T) {
	c, _ := ByName(Zstd, 0)
	_, err := NewWriter(io.Discard, c, 1000)
	assert.ErrorIs(t, err, ErrBadBufferSize)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, c, 512)
	require.NoError(t, err)
	_, _ = w.Write(sampleData(2000))
	require.NoError(t, w.Close())

	_, err = NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), LZ4)
	assert.ErrorIs(t, err, ErrCorruptFile)

	corrupt := bytes.Clone(buf.Bytes())
	corrupt[len(corrupt)-20] ^= 0xff
	_, err = NewReader(bytes.NewReader(corrupt), int64(len(corrupt)), "")
	assert.ErrorIs(t, err, ErrCorruptFile)

	_, err = NewReader(bytes.NewReader([]byte{1, 2}), 2, "")
	assert.ErrorIs(t, err, ErrCorruptFile)
}

func TestFileCorruptBlockLength(t *testing.T) {
	for _, name := range []string{LZ4, Zstd} {
		t.Run(name, func(t *testing.T) {
			c, err := ByName(name, 0)
			require.NoError(t, err)
			var buf bytes.Buffer
			w, err := NewWriter(&buf, c, 8)
			require.NoError(t, err)
			_, err = w.Write(sampleData(20))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			corrupt := bytes.Clone(buf.Bytes())
			// rawLen of block 0
			corrupt[0], corrupt[1], corrupt[2], corrupt[3] = 2, 0, 0, 0
			r, err := NewReader(bytes.NewReader(corrupt), int64(len(corrupt)), name)
			require.NoError(t, err)

			p := make([]byte, 1)
			_, err = r.ReadAt(p, 5)
			assert.ErrorIs(t, err, ErrCorruptFile)
			assert.ErrorIs(t, status.IOError(err, "read item"), status.ErrCorruption)
			_, err = r.ReadAt(make([]byte, 20), 0)
			assert.ErrorIs(t, err, ErrCorruptFile)

			n, err := r.ReadAt(p, 16)
			require.NoError(t, err, "intact blocks stay readable")
			assert.Equal(t, 1, n)
		})
	}
}
