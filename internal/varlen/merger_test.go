package varlen

import (
	"context"
	"errors"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
	"github.com/hupe1980/indexmerge/testutil"
)

type mapPatch map[model.DocID][]byte

func (p mapPatch) Patch(doc model.DocID) ([]byte, bool, error) {
	v, ok := p[doc]
	return v, ok, nil
}

type fixture struct {
	dir    blobstore.Dir
	infos  *segment.MergeInfos
	mapper docmapper.DocMapper
	values [][][]byte
}

// newFixture writes one column per source segment.
func newFixture(t *testing.T, param Param, values [][][]byte, deletions []*roaring.Bitmap, targets ...model.SegmentID) *fixture {
	t.Helper()
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
	counts := make([]uint32, len(values))
	for i, v := range values {
		counts[i] = uint32(len(v))
	}
	infos := testutil.MergeInfos(dir, counts, targets...)
	for i, src := range infos.SrcSegments {
		writeColumn(t, src.Directory(), param, values[i])
	}
	mapper, err := docmapper.NewReclaimMap(infos, deletions)
	require.NoError(t, err)
	return &fixture{dir: dir, infos: infos, mapper: mapper, values: values}
}

func (f *fixture) inputs(t *testing.T, param Param, patches map[int]mapPatch) []Input {
	t.Helper()
	inputs := make([]Input, len(f.infos.SrcSegments))
	for i, src := range f.infos.SrcSegments {
		r, err := Open(context.Background(), src.Directory(), offsetName, dataName, param)
		require.NoError(t, err)
		t.Cleanup(func() { r.Close() })
		inputs[i] = Input{Reader: r}
		if p, ok := patches[i]; ok {
			inputs[i].Patch = p
		}
	}
	return inputs
}

func (f *fixture) merge(t *testing.T, param Param, patches map[int]mapPatch) ([]*Writer, *Merger) {
	t.Helper()
	ctx := context.Background()
	outputs := make([]*Writer, len(f.infos.TargetSegments))
	for i, meta := range f.infos.TargetSegments {
		outputs[i] = NewWriter()
		require.NoError(t, outputs[i].Init(ctx, meta.Dir, offsetName, dataName, param))
	}
	m := NewMerger(param)
	require.NoError(t, m.Init(f.infos, f.mapper, f.inputs(t, param, patches), outputs))
	require.NoError(t, m.Merge(ctx))
	return outputs, m
}

// expected returns the value every new doc should read back.
func (f *fixture) expected(patches map[int]mapPatch) map[model.SegmentID][][]byte {
	want := map[model.SegmentID][][]byte{}
	for i, src := range f.infos.SrcSegments {
		for local := range src.DocCount() {
			seg, id := f.mapper.Map(src.BaseDocID + model.DocID(local))
			if !seg.Valid() {
				continue
			}
			v := f.values[i][local]
			if p, ok := patches[i][model.DocID(local)]; ok {
				v = p
			}
			for len(want[seg]) <= int(id) {
				want[seg] = append(want[seg], nil)
			}
			want[seg][id] = v
		}
	}
	return want
}

func TestNormalMergeRoundTrip(t *testing.T) {
	rng := testutil.NewRNG(4711)
	param := Param{EnableAdaptiveOffset: true, DataCompressor: "lz4", CompressBufferSize: 1024}
	values := [][][]byte{rng.Values(100, 30, 40), rng.Values(1, 30, 1), {}, rng.Values(77, 30, 40)}
	deletions := []*roaring.Bitmap{rng.Deletions(100, 0.2), nil, nil, rng.Deletions(77, 0.5)}
	f := newFixture(t, param, values, deletions, 4, 6)

	outputs, m := f.merge(t, param, nil)
	assert.True(t, m.PatchedDocs().IsEmpty())

	want := f.expected(nil)
	for i, meta := range f.infos.TargetSegments {
		assert.Equal(t, int(f.mapper.GetTargetSegmentDocCount(meta.ID)), outputs[i].OffsetCount())
		assert.Equal(t, want[meta.ID], readColumn(t, meta.Dir, param))
	}
}

func TestUniqMergeDedup(t *testing.T) {
	rng := testutil.NewRNG(99)
	param := Param{DataItemUniqEncode: true, AppendDataItemLength: true, EqualCompressOffset: true}
	values := [][][]byte{rng.Values(200, 12, 15), rng.Values(150, 12, 15)}
	deletions := []*roaring.Bitmap{rng.Deletions(200, 0.1), rng.Deletions(150, 0.1)}
	f := newFixture(t, param, values, deletions, 0, 1)

	outputs, _ := f.merge(t, param, nil)

	want := f.expected(nil)
	for i, meta := range f.infos.TargetSegments {
		got := readColumn(t, meta.Dir, param)
		assert.Equal(t, want[meta.ID], got)

		distinct := map[string]bool{}
		for _, v := range got {
			distinct[string(v)] = true
		}
		assert.Equal(t, uint32(len(distinct)), outputs[i].DataItemCount(), "target %d", meta.ID)
	}
}

func TestPatchPrecedence(t *testing.T) {
	for _, uniq := range []bool{false, true} {
		param := Param{DataItemUniqEncode: uniq, AppendDataItemLength: true}
		values := [][][]byte{
			{[]byte("b"), []byte("p"), []byte("b")},
			{[]byte("p"), []byte("q")},
		}
		f := newFixture(t, param, values, nil, 0)
		// doc 0 of segment 0 is patched to "p", which segment 0 doc 1 and
		// segment 1 doc 0 hold as base value.
		patches := map[int]mapPatch{0: {0: []byte("p")}}

		outputs, m := f.merge(t, param, patches)
		assert.Equal(t, []uint32{0}, m.PatchedDocs().ToArray())

		got := readColumn(t, f.infos.TargetSegments[0].Dir, param)
		assert.Equal(t, f.expected(patches)[0], got)
		assert.Equal(t, []byte("p"), got[0])

		if uniq {
			// "p" from the patch, "p" and "b" and "q" from the base
			// columns: the patched item is not shared.
			assert.Equal(t, uint32(4), outputs[0].DataItemCount())

			r, err := Open(context.Background(), f.infos.TargetSegments[0].Dir, offsetName, dataName, param)
			require.NoError(t, err)
			patchedOff, _ := r.GetOffset(0)
			baseOff, _ := r.GetOffset(1)
			otherOff, _ := r.GetOffset(3)
			assert.NotEqual(t, patchedOff, baseOff)
			assert.Equal(t, baseOff, otherOff)
			require.NoError(t, r.Close())
		}
	}
}

func TestEndToEndScenario(t *testing.T) {
	param := Param{DataItemUniqEncode: true, AppendDataItemLength: true}
	values := [][][]byte{
		{[]byte("x"), []byte("y")},
		{[]byte("y"), []byte("z")},
	}
	f := newFixture(t, param, values, []*roaring.Bitmap{roaring.BitmapOf(1)}, 0)
	require.Equal(t, model.DocID(2), f.infos.SrcSegments[1].BaseDocID)

	outputs, _ := f.merge(t, param, nil)
	got := readColumn(t, f.infos.TargetSegments[0].Dir, param)
	assert.Equal(t, [][]byte{[]byte("x"), []byte("y"), []byte("z")}, got)
	assert.Equal(t, 3, outputs[0].OffsetCount())
	assert.Equal(t, uint32(3), outputs[0].DataItemCount())
}

func TestMergeIsDeterministic(t *testing.T) {
	rng := testutil.NewRNG(7)
	param := Param{DataItemUniqEncode: true, AppendDataItemLength: true, DataCompressor: "zstd"}
	values := [][][]byte{rng.Values(60, 10, 8), rng.Values(60, 10, 8)}
	f := newFixture(t, param, values, nil, 0)

	ctx := context.Background()
	target := f.infos.TargetSegments[0].Dir
	f.merge(t, param, nil)
	first, err := target.ReadFile(ctx, dataName)
	require.NoError(t, err)
	firstOffsets, err := target.ReadFile(ctx, offsetName)
	require.NoError(t, err)

	require.NoError(t, target.RemoveAll(ctx))
	f.merge(t, param, nil)
	second, err := target.ReadFile(ctx, dataName)
	require.NoError(t, err)
	secondOffsets, err := target.ReadFile(ctx, offsetName)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstOffsets, secondOffsets)
}

type failingReader struct {
	ValueReader
	failAt model.DocID
}

var errRead = errors.New("read failed")

func (r failingReader) GetValue(doc model.DocID) ([]byte, error) {
	if doc == r.failAt {
		return nil, errRead
	}
	return r.ValueReader.GetValue(doc)
}

func TestMergeClosesOutputsOnFailure(t *testing.T) {
	ctx := context.Background()
	param := Param{}
	f := newFixture(t, param, [][][]byte{{[]byte("a"), []byte("b"), []byte("c")}}, nil, 0)

	inputs := f.inputs(t, param, nil)
	inputs[0].Reader = failingReader{ValueReader: inputs[0].Reader, failAt: 2}

	w := NewWriter()
	target := f.infos.TargetSegments[0].Dir
	require.NoError(t, w.Init(ctx, target, offsetName, dataName, param))
	m := NewMerger(param)
	require.NoError(t, m.Init(f.infos, f.mapper, inputs, []*Writer{w}))

	err := m.Merge(ctx)
	assert.ErrorIs(t, err, errRead)

	// The writer was closed, so both files exist with the partial output.
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, readColumn(t, target, param))
	assert.ErrorIs(t, w.AppendValue([]byte("x")), ErrWriterClosed)
}

func TestMergerInitMismatch(t *testing.T) {
	param := Param{}
	f := newFixture(t, param, [][][]byte{{[]byte("a")}}, nil, 0)
	m := NewMerger(param)
	err := m.Init(f.infos, f.mapper, nil, []*Writer{NewWriter()})
	assert.ErrorIs(t, err, status.ErrInvalidArgs)
	err = m.Init(f.infos, f.mapper, f.inputs(t, param, nil), nil)
	assert.ErrorIs(t, err, status.ErrInvalidArgs)
}

func TestMergeDefaultReader(t *testing.T) {
	param := Param{DataItemUniqEncode: true, AppendDataItemLength: true}
	f := newFixture(t, param, [][][]byte{{[]byte("a"), []byte("b")}, {nil, nil, nil}}, nil, 0)
	inputs := f.inputs(t, param, nil)
	inputs[1].Reader = NewDefaultReader([]byte("dflt"), 3)

	ctx := context.Background()
	w := NewWriter()
	require.NoError(t, w.Init(ctx, f.infos.TargetSegments[0].Dir, offsetName, dataName, param))
	m := NewMerger(param)
	require.NoError(t, m.Init(f.infos, f.mapper, inputs, []*Writer{w}))
	require.NoError(t, m.Merge(ctx))

	got := readColumn(t, f.infos.TargetSegments[0].Dir, param)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("dflt"), []byte("dflt"), []byte("dflt")}, got)
	assert.Equal(t, uint32(3), w.DataItemCount())
}

func TestEstimateMemoryUse(t *testing.T) {
	normal := Param{}
	uniq := Param{DataItemUniqEncode: true, AppendDataItemLength: true}

	prev := int64(0)
	for _, n := range []uint32{0, 1, 10, 1000, 1 << 20} {
		got := EstimateMemoryUse(normal, n)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
		assert.Greater(t, EstimateMemoryUse(uniq, n), got)
	}
	assert.Equal(t, EstimateMemoryUse(uniq, 5), NewMerger(uniq).EstimateMemoryUse(5))
}
