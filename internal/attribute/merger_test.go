package attribute

import (
	"context"
	"fmt"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
	"github.com/hupe1980/indexmerge/taskres"
	"github.com/hupe1980/indexmerge/testutil"
)

const mapperName = "merge_plan_docmapper"

func mergeParams() map[string]string {
	return map[string]string{ParamDocMapperName: mapperName}
}

func resources(mapper docmapper.DocMapper) *taskres.Manager {
	res := taskres.NewMemoryManager()
	res.AddResource(mapperName, docmapper.ResourceType, mapper)
	return res
}

func attrIndexes(name string) []string {
	return []string{segment.IndexKey(segment.KindAttribute, name)}
}

// targetSegment opens a merge target for reading.
func targetSegment(meta segment.Meta, mapper docmapper.DocMapper, name string) segment.Segment {
	info := segment.Info{SegmentID: meta.ID, DocCount: mapper.GetTargetSegmentDocCount(meta.ID), Indexes: attrIndexes(name)}
	return segment.NewDiskSegment(info, meta.Dir)
}

// expectedValues returns, per target, the value each new doc should read.
func expectedValues[V any](infos *segment.MergeInfos, mapper docmapper.DocMapper, value func(seg int, local model.DocID) V) map[model.SegmentID][]V {
	want := map[model.SegmentID][]V{}
	for _, t := range infos.TargetSegments {
		want[t.ID] = make([]V, mapper.GetTargetSegmentDocCount(t.ID))
	}
	for i, src := range infos.SrcSegments {
		for local := range model.DocID(src.DocCount()) {
			seg, id := mapper.Map(src.BaseDocID + local)
			if seg.Valid() {
				want[seg][id] = value(i, local)
			}
		}
	}
	return want
}

type nullable[T Fixed] struct {
	V      T
	IsNull bool
}

func readSingle[T Fixed](t *testing.T, seg segment.Segment, cfg *config.AttributeConfig) []nullable[T] {
	t.Helper()
	ix, err := OpenSingleValueIndexer[T](context.Background(), seg, cfg)
	require.NoError(t, err)
	defer ix.Close()
	out := make([]nullable[T], seg.DocCount())
	for doc := range model.DocID(seg.DocCount()) {
		v, isNull, err := ix.Get(doc)
		require.NoError(t, err)
		out[doc] = nullable[T]{v, isNull}
	}
	return out
}

func TestSingleValueMergeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AttributeConfig
	}{
		{"plain", config.AttributeConfig{Name: "price", FieldType: config.FieldInt32}},
		{"equal", config.AttributeConfig{Name: "price", FieldType: config.FieldInt32, CompressType: "equal"}},
		{"nullable", config.AttributeConfig{Name: "price", FieldType: config.FieldInt32, Nullable: true}},
		{"zstd", config.AttributeConfig{Name: "price", FieldType: config.FieldInt32, CompressType: "equal",
			FileCompress: &config.FileCompressConfig{Compressor: "zstd", BufferSize: 512}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			rng := testutil.NewRNG(42)
			cfg := tt.cfg
			dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
			counts := []uint32{300, 0, 1, 257}
			infos := testutil.IndexedMergeInfos(dir, counts, attrIndexes(cfg.Name), 11, 12)

			values := make([][]int32, len(counts))
			nulls := make([][]bool, len(counts))
			for i, n := range counts {
				values[i] = make([]int32, n)
				nulls[i] = make([]bool, n)
				for j := range values[i] {
					values[i][j] = int32(rng.Zipf(5, 1.1))
					nulls[i][j] = cfg.Nullable && rng.Intn(7) == 0
				}
				require.NoError(t, WriteSingleValue(ctx, infos.SrcSegments[i].Directory(), &cfg, values[i], nulls[i], nil))
			}
			mapper, err := docmapper.NewReclaimMap(infos, []*roaring.Bitmap{rng.Deletions(300, 0.3), nil, nil, rng.Deletions(257, 0.1)})
			require.NoError(t, err)

			m := NewSingleValueMerger[int32](Options{})
			require.NoError(t, m.Init(&cfg, mergeParams()))
			require.NoError(t, m.Merge(ctx, infos, resources(mapper)))

			want := expectedValues(infos, mapper, func(seg int, local model.DocID) nullable[int32] {
				if nulls[seg][local] {
					return nullable[int32]{IsNull: true}
				}
				return nullable[int32]{V: values[seg][local]}
			})
			for _, meta := range infos.TargetSegments {
				assert.Equal(t, want[meta.ID], readSingle[int32](t, targetSegment(meta, mapper, cfg.Name), &cfg))
			}
		})
	}
}

func TestSingleValueMergeAppliesPatches(t *testing.T) {
	ctx := context.Background()
	cfg := config.AttributeConfig{Name: "stock", FieldType: config.FieldInt64, Updatable: true}
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
	infos := testutil.IndexedMergeInfos(dir, []uint32{10, 10, 10}, attrIndexes(cfg.Name), 20, 21)
	for i, src := range infos.SrcSegments {
		values := make([]int64, 10)
		for j := range values {
			values[j] = int64(i*10 + j)
		}
		require.NoError(t, WriteSingleValue(ctx, src.Directory(), &cfg, values, nil, nil))
	}

	writePatch := func(src, dest model.SegmentID, updates map[model.DocID]int64) {
		w := NewPatchFileWriter()
		for doc, v := range updates {
			w.Add(doc, appendFixed(nil, v), false)
		}
		attrDir := segment.AttributeDirOf(infos.SrcSegments[src].Directory(), cfg.Name, 1, 0)
		require.NoError(t, w.Write(ctx, attrDir, PatchFileName(src, dest)))
	}
	writePatch(1, 0, map[model.DocID]int64{3: 100, 4: 101})
	writePatch(2, 0, map[model.DocID]int64{4: 200, 5: 201})
	writePatch(2, 1, map[model.DocID]int64{0: 300})
	// Patches for segment 5, which is not merged, are carried forward.
	writePatch(1, 5, map[model.DocID]int64{7: 400, 8: 401})
	writePatch(2, 5, map[model.DocID]int64{8: 500})

	mapper, err := docmapper.NewReclaimMap(infos, nil)
	require.NoError(t, err)
	m := NewSingleValueMerger[int64](Options{})
	require.NoError(t, m.Init(&cfg, mergeParams()))
	require.NoError(t, m.Merge(ctx, infos, resources(mapper)))

	patched := map[[2]int]int64{{0, 3}: 100, {0, 4}: 200, {0, 5}: 201, {1, 0}: 300}
	want := expectedValues(infos, mapper, func(seg int, local model.DocID) nullable[int64] {
		if v, ok := patched[[2]int{seg, int(local)}]; ok {
			return nullable[int64]{V: v}
		}
		return nullable[int64]{V: int64(seg*10) + int64(local)}
	})
	for _, meta := range infos.TargetSegments {
		assert.Equal(t, want[meta.ID], readSingle[int64](t, targetSegment(meta, mapper, cfg.Name), &cfg))
	}

	last := infos.TargetSegments[len(infos.TargetSegments)-1]
	attrDir := segment.AttributeDirOf(last.Dir, cfg.Name, 1, 0)
	files, err := attrDir.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, files, PatchFileName(2, 5))
	assert.NotContains(t, files, PatchFileName(1, 0))

	r, err := NewPatchReader(ctx, []PatchFileInfo{{Dir: attrDir, Name: PatchFileName(2, 5), SrcSegment: 2, DestSegment: 5}})
	require.NoError(t, err)
	var got []int64
	for rec, ok := r.Next(); ok; rec, ok = r.Next() {
		got = append(got, int64(rec.Doc), decodeFixed[int64](rec.Value))
	}
	assert.Equal(t, []int64{7, 400, 8, 500}, got)
}

func TestSlicedMerge(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(7)
	base := config.AttributeConfig{Name: "score", FieldType: config.FieldFloat64, SliceCount: 3}
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
	counts := []uint32{40, 23}
	infos := testutil.IndexedMergeInfos(dir, counts, attrIndexes(base.Name), 30)

	values := make([][]float64, len(counts))
	for i, n := range counts {
		values[i] = make([]float64, n)
		for j := range values[i] {
			values[i][j] = float64(rng.Intn(1000)) / 8
		}
		require.NoError(t, WriteSingleValue(ctx, infos.SrcSegments[i].Directory(), &base, values[i], nil, nil))
	}
	mapper, err := docmapper.NewReclaimMap(infos, []*roaring.Bitmap{rng.Deletions(40, 0.25), nil})
	require.NoError(t, err)
	res := resources(mapper)

	for _, idx := range []int{2, 0, 1} {
		cfg := base.WithSlice(idx)
		m := NewSingleValueMerger[float64](Options{})
		require.NoError(t, m.Init(&cfg, mergeParams()))
		require.NoError(t, m.Merge(ctx, infos, res))
	}

	meta := infos.TargetSegments[0]
	attrDir := segment.AttributeDirOf(meta.Dir, base.Name, 1, 0)
	info, err := LoadSliceInfo(ctx, attrDir)
	require.NoError(t, err)
	assert.Equal(t, SliceInfo{SliceCount: 3, DocCount: mapper.GetNewDocCount()}, info)

	for idx := range 3 {
		begin, end := info.Range(idx)
		data, err := LoadDataInfo(ctx, attrDir.Sub(segment.SliceDirName(idx)))
		require.NoError(t, err)
		assert.Equal(t, uint32(end-begin+1), data.UniqItemCount, "slice %d", idx)
	}

	want := expectedValues(infos, mapper, func(seg int, local model.DocID) nullable[float64] {
		return nullable[float64]{V: values[seg][local]}
	})
	assert.Equal(t, want[meta.ID], readSingle[float64](t, targetSegment(meta, mapper, base.Name), &base))
}

func TestSlicedMergeRejectsMultipleTargets(t *testing.T) {
	ctx := context.Background()
	cfg := config.AttributeConfig{Name: "score", FieldType: config.FieldUint16, SliceCount: 2}
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
	infos := testutil.IndexedMergeInfos(dir, []uint32{4}, attrIndexes(cfg.Name), 1, 2)
	require.NoError(t, WriteSingleValue(ctx, infos.SrcSegments[0].Directory(), &cfg, []uint16{1, 2, 3, 4}, nil, nil))
	mapper, err := docmapper.NewReclaimMap(infos, nil)
	require.NoError(t, err)

	m := NewSingleValueMerger[uint16](Options{})
	require.NoError(t, m.Init(&cfg, mergeParams()))
	err = m.Merge(ctx, infos, resources(mapper))
	assert.ErrorIs(t, err, status.ErrCorruption)
}

func TestMergeSubstitutesDefaultValue(t *testing.T) {
	ctx := context.Background()
	cfg := config.AttributeConfig{Name: "level", FieldType: config.FieldUint8, DefaultValue: "7"}
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
	old := segment.NewDiskSegment(segment.Info{SegmentID: 0, DocCount: 3}, dir.Sub("segment_0"))
	cur := segment.NewDiskSegment(segment.Info{SegmentID: 1, DocCount: 2, Indexes: attrIndexes(cfg.Name)}, dir.Sub("segment_1"))
	require.NoError(t, WriteSingleValue(ctx, cur.Directory(), &cfg, []uint8{1, 2}, nil, nil))
	infos := segment.NewMergeInfos([]segment.Segment{old, cur}, []segment.Meta{{ID: 4, Dir: dir.Sub("target_4")}})
	mapper, err := docmapper.NewReclaimMap(infos, nil)
	require.NoError(t, err)

	m := NewSingleValueMerger[uint8](Options{})
	require.NoError(t, m.Init(&cfg, mergeParams()))
	require.NoError(t, m.Merge(ctx, infos, resources(mapper)))

	got := readSingle[uint8](t, targetSegment(infos.TargetSegments[0], mapper, cfg.Name), &cfg)
	assert.Equal(t, []nullable[uint8]{{V: 7}, {V: 7}, {V: 7}, {V: 1}, {V: 2}}, got)
}

func readMulti(t *testing.T, seg segment.Segment, cfg *config.AttributeConfig) [][]byte {
	t.Helper()
	ix := OpenMultiValueIndexer(context.Background(), seg, cfg, ParamForAttribute(cfg))
	defer ix.Close()
	out := make([][]byte, seg.DocCount())
	for doc := range model.DocID(seg.DocCount()) {
		v, err := ix.Read(doc)
		require.NoError(t, err)
		out[doc] = v
	}
	return out
}

func TestMultiValueMerge(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AttributeConfig
	}{
		{"strings", config.AttributeConfig{Name: "tags", FieldType: config.FieldString, MultiValue: true}},
		{"uniq", config.AttributeConfig{Name: "tags", FieldType: config.FieldString, MultiValue: true, CompressType: "uniq|equal"}},
		{"uniq lz4", config.AttributeConfig{Name: "tags", FieldType: config.FieldString, CompressType: "uniq",
			FileCompress: &config.FileCompressConfig{Compressor: "lz4", BufferSize: 256}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			rng := testutil.NewRNG(1234)
			cfg := tt.cfg
			dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
			counts := []uint32{120, 64, 1}
			infos := testutil.IndexedMergeInfos(dir, counts, attrIndexes(cfg.Name), 3, 4, 5)

			values := make([][][]byte, len(counts))
			distinct := map[string]bool{}
			for i, n := range counts {
				values[i] = rng.Values(int(n), 16, 20)
				require.NoError(t, WriteMultiValue(ctx, infos.SrcSegments[i].Directory(), &cfg, values[i], nil))
			}
			mapper, err := docmapper.NewReclaimMap(infos, []*roaring.Bitmap{rng.Deletions(120, 0.2), rng.Deletions(64, 0.2)})
			require.NoError(t, err)

			m := NewMultiValueMerger[string](Options{})
			require.NoError(t, m.Init(&cfg, mergeParams()))
			require.NoError(t, m.Merge(ctx, infos, resources(mapper)))

			want := expectedValues(infos, mapper, func(seg int, local model.DocID) []byte {
				return values[seg][local]
			})
			for _, meta := range infos.TargetSegments {
				got := readMulti(t, targetSegment(meta, mapper, cfg.Name), &cfg)
				require.Len(t, got, len(want[meta.ID]))
				for i := range got {
					assert.Equal(t, string(want[meta.ID][i]), string(got[i]), "target %d doc %d", meta.ID, i)
				}
				if cfg.IsUniqEncode() {
					clear(distinct)
					for _, v := range want[meta.ID] {
						distinct[string(v)] = true
					}
					info, err := LoadDataInfo(ctx, segment.AttributeDirOf(meta.Dir, cfg.Name, 1, 0))
					require.NoError(t, err)
					assert.Equal(t, uint32(len(distinct)), info.UniqItemCount)
				}
			}
		})
	}
}

func TestMultiValueMergePatchPrecedence(t *testing.T) {
	ctx := context.Background()
	cfg := config.AttributeConfig{Name: "ids", FieldType: config.FieldInt32, MultiValue: true, CompressType: "uniq", Updatable: true}
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
	infos := testutil.IndexedMergeInfos(dir, []uint32{3, 3}, attrIndexes(cfg.Name), 9)

	x, y, z := EncodeMulti([]int32{1, 2}), EncodeMulti([]int32{3}), EncodeMulti([]int32{})
	require.NoError(t, WriteMultiValue(ctx, infos.SrcSegments[0].Directory(), &cfg, [][]byte{x, y, x}, nil))
	require.NoError(t, WriteMultiValue(ctx, infos.SrcSegments[1].Directory(), &cfg, [][]byte{y, z, x}, nil))

	w := NewPatchFileWriter()
	w.Add(1, x, false)
	w.Add(2, z, false)
	require.NoError(t, w.Write(ctx, segment.AttributeDirOf(infos.SrcSegments[1].Directory(), cfg.Name, 1, 0), PatchFileName(1, 0)))

	mapper, err := docmapper.NewReclaimMap(infos, nil)
	require.NoError(t, err)
	m := NewMultiValueMerger[int32](Options{})
	require.NoError(t, m.Init(&cfg, mergeParams()))
	require.NoError(t, m.Merge(ctx, infos, resources(mapper)))

	got := readMulti(t, targetSegment(infos.TargetSegments[0], mapper, cfg.Name), &cfg)
	assert.Equal(t, [][]byte{x, x, z, y, z, x}, got)

	decoded, err := DecodeMulti[int32](got[1])
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, decoded)
}

func TestMultiValueMergeDefaultValue(t *testing.T) {
	ctx := context.Background()
	cfg := config.AttributeConfig{Name: "labels", FieldType: config.FieldString, MultiValue: true, DefaultValue: "a,b"}
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
	old := segment.NewDiskSegment(segment.Info{SegmentID: 0, DocCount: 2}, dir.Sub("segment_0"))
	cur := segment.NewDiskSegment(segment.Info{SegmentID: 1, DocCount: 1, Indexes: attrIndexes(cfg.Name)}, dir.Sub("segment_1"))
	c := EncodeStrings([]string{"c"})
	require.NoError(t, WriteMultiValue(ctx, cur.Directory(), &cfg, [][]byte{c}, nil))
	infos := segment.NewMergeInfos([]segment.Segment{old, cur}, []segment.Meta{{ID: 2, Dir: dir.Sub("target_2")}})
	mapper, err := docmapper.NewReclaimMap(infos, nil)
	require.NoError(t, err)

	m := NewMultiValueMerger[string](Options{})
	require.NoError(t, m.Init(&cfg, mergeParams()))
	require.NoError(t, m.Merge(ctx, infos, resources(mapper)))

	got := readMulti(t, targetSegment(infos.TargetSegments[0], mapper, cfg.Name), &cfg)
	require.Len(t, got, 3)
	for i, want := range [][]string{{"a", "b"}, {"a", "b"}, {"c"}} {
		s, err := DecodeStrings(got[i])
		require.NoError(t, err)
		assert.Equal(t, want, s)
	}
}

func snapshot(t *testing.T, dir blobstore.Dir) map[string][]byte {
	t.Helper()
	ctx := context.Background()
	files, err := dir.List(ctx)
	require.NoError(t, err)
	out := make(map[string][]byte, len(files))
	for _, f := range files {
		out[f], err = dir.ReadFile(ctx, f)
		require.NoError(t, err)
	}
	return out
}

func TestMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(5)
	cfg := config.AttributeConfig{Name: "title", FieldType: config.FieldString, CompressType: "uniq"}
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
	infos := testutil.IndexedMergeInfos(dir, []uint32{50, 50}, attrIndexes(cfg.Name), 8)
	for _, src := range infos.SrcSegments {
		require.NoError(t, WriteMultiValue(ctx, src.Directory(), &cfg, rng.Values(50, 10, 12), nil))
	}
	mapper, err := docmapper.NewReclaimMap(infos, []*roaring.Bitmap{rng.Deletions(50, 0.3)})
	require.NoError(t, err)

	var runs []map[string][]byte
	for range 2 {
		m := NewMultiValueMerger[string](Options{})
		require.NoError(t, m.Init(&cfg, mergeParams()))
		require.NoError(t, m.Merge(ctx, infos, resources(mapper)))
		runs = append(runs, snapshot(t, infos.TargetSegments[0].Dir))
	}
	assert.NotEmpty(t, runs[0])
	assert.Equal(t, runs[0], runs[1])
}

func TestMergerRequiresDocMapper(t *testing.T) {
	cfg := config.AttributeConfig{Name: "a", FieldType: config.FieldInt32}
	m := NewSingleValueMerger[int32](Options{})
	assert.ErrorIs(t, m.Init(&cfg, nil), status.ErrCorruption)

	require.NoError(t, m.Init(&cfg, mergeParams()))
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
	infos := testutil.IndexedMergeInfos(dir, []uint32{1}, attrIndexes(cfg.Name), 1)
	err := m.Merge(context.Background(), infos, taskres.NewMemoryManager())
	assert.ErrorIs(t, err, status.ErrCorruption)
}

func TestMergerRejectsBadMemoryLimit(t *testing.T) {
	cfg := config.AttributeConfig{Name: "a", FieldType: config.FieldString}
	m := NewMultiValueMerger[string](Options{})
	params := mergeParams()
	params[ParamMergeSwitchMemoryLimit] = "lots"
	assert.ErrorIs(t, m.Init(&cfg, params), status.ErrInvalidArgs)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	for _, typ := range []config.FieldType{config.FieldInt8, config.FieldUint64, config.FieldFloat32, config.FieldString} {
		for _, multi := range []bool{false, true} {
			cfg := config.AttributeConfig{Name: "a", FieldType: typ, MultiValue: multi}
			m, err := r.Create(&cfg, Options{})
			require.NoError(t, err)
			switch {
			case typ == config.FieldString:
				assert.IsType(t, &MultiValueMerger[string]{}, m)
			case multi:
				assert.Contains(t, fmt.Sprintf("%T", m), "MultiValueMerger")
			default:
				assert.Contains(t, fmt.Sprintf("%T", m), "SingleValueMerger")
			}
		}
	}
	_, err := r.Create(&config.AttributeConfig{Name: "a", FieldType: "geo"}, Options{})
	assert.ErrorIs(t, err, status.ErrUnimplemented)
}

func TestEstimateMemoryUseGrowsWithDocs(t *testing.T) {
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "plan")
	small := testutil.MergeInfos(dir, []uint32{10}, 1)
	large := testutil.MergeInfos(dir, []uint32{10000}, 1)
	for _, cfg := range []config.AttributeConfig{
		{Name: "a", FieldType: config.FieldInt32, CompressType: "equal"},
		{Name: "b", FieldType: config.FieldString, CompressType: "uniq"},
	} {
		m, err := NewRegistry().Create(&cfg, Options{})
		require.NoError(t, err)
		require.NoError(t, m.Init(&cfg, mergeParams()))
		assert.Less(t, m.EstimateMemoryUse(small), m.EstimateMemoryUse(large), cfg.Name)
	}
}
