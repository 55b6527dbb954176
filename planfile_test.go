package indexmerge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/codec"
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

const testPlanYAML = `
name: nightly
schema: schema.yaml
docmapper: merge_plan_docmapper
resource_dir: task
sources:
  - segments/segment_0
  - segments/segment_1
targets:
  - id: 7
    uri: segments/segment_7
  - id: 8
    uri: segments/segment_8
`

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestPlanFileEndToEnd(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	schema := testSchema()
	writeFile(t, filepath.Join(root, "schema.yaml"), codec.MustMarshal(codec.YAML{}, schema))
	writeFile(t, filepath.Join(root, "plan.yaml"), []byte(testPlanYAML))

	counts := []uint32{30, 12}
	segs := make([]segment.Segment, len(counts))
	for i, n := range counts {
		dir, err := OpenStore(ctx, filepath.Join(root, "segments", fmt.Sprintf("segment_%d", i)))
		require.NoError(t, err)
		info := segment.Info{SegmentID: model.SegmentID(i), DocCount: n, Indexes: schemaIndexes(schema)}
		require.NoError(t, segment.WriteInfo(ctx, dir, info))
		segs[i] = segment.NewDiskSegment(info, dir)
	}
	writeSegments(t, schema, segment.NewMergeInfos(segs, nil))
	deleted := roaring.BitmapOf(0, 3, 4, 29)
	require.NoError(t, docmapper.WriteDeletionMap(ctx, segs[0].Directory(), deleted))

	pf, err := LoadPlanFile(filepath.Join(root, "plan.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "nightly", pf.Name)

	opener := NewStoreOpener(0, nil)
	mapper, err := pf.BuildDocMapper(ctx, opener, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 42-4, mapper.GetNewDocCount())
	assert.FileExists(t, filepath.Join(root, "task", pf.DocMapper))

	plan, err := pf.Plan(ctx, opener)
	require.NoError(t, err)
	res, err := Run(ctx, plan, WithConcurrency(2))
	require.NoError(t, err)
	require.Len(t, res.Targets, 2)

	var docs uint32
	for _, tr := range res.Targets {
		seg, err := segment.Open(ctx, mustOpen(t, filepath.Join(root, "segments", fmt.Sprintf("segment_%d", tr.SegmentID))))
		require.NoError(t, err)
		assert.Equal(t, tr.DocCount, seg.DocCount())
		docs += seg.DocCount()
	}
	assert.EqualValues(t, 38, docs)
}

func mustOpen(t *testing.T, uri string) blobstore.Dir {
	t.Helper()
	dir, err := OpenStore(context.Background(), uri)
	require.NoError(t, err)
	return dir
}

func TestBuildDocMapperTargetRange(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dir, err := OpenStore(ctx, filepath.Join(root, "s0"))
	require.NoError(t, err)
	require.NoError(t, segment.WriteInfo(ctx, dir, segment.Info{SegmentID: 0, DocCount: 10}))

	pf := &PlanFile{
		Schema:      "unused.yaml",
		DocMapper:   "dm",
		ResourceDir: filepath.Join(root, "res"),
		Sources:     []string{filepath.Join(root, "s0")},
		Targets:     []PlanFileTarget{{ID: 1, URI: filepath.Join(root, "t1")}, {ID: 2, URI: filepath.Join(root, "t2")}},
	}
	opener := NewStoreOpener(-1, nil)

	_, err = pf.BuildDocMapper(ctx, opener, 3)
	assert.ErrorIs(t, err, status.ErrInvalidArgs)

	m, err := pf.BuildDocMapper(ctx, opener, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 10, m.GetTargetSegmentDocCount(1))
	assert.Zero(t, m.GetTargetSegmentDocCount(2))
}

func TestLoadPlanFileErrors(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", testPlanYAML + "extra: 1\n"},
		{"no schema", "docmapper: dm\nresource_dir: r\ntargets: [{id: 1, uri: t}]\n"},
		{"no docmapper", "schema: s.yaml\nresource_dir: r\ntargets: [{id: 1, uri: t}]\n"},
		{"no resource dir", "schema: s.yaml\ndocmapper: dm\ntargets: [{id: 1, uri: t}]\n"},
		{"no targets", "schema: s.yaml\ndocmapper: dm\nresource_dir: r\n"},
		{"target without uri", "schema: s.yaml\ndocmapper: dm\nresource_dir: r\ntargets: [{id: 1}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(root, "plan.yaml")
			writeFile(t, path, []byte(tt.yaml))
			_, err := LoadPlanFile(path)
			assert.ErrorIs(t, err, status.ErrInvalidArgs)
		})
	}

	_, err := LoadPlanFile(filepath.Join(root, "missing.yaml"))
	assert.ErrorIs(t, err, status.ErrIO)
}

func TestStoreOpener(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	dir, err := OpenStore(ctx, "file://"+filepath.Join(root, "a"))
	require.NoError(t, err)
	require.NoError(t, dir.WriteFile(ctx, "x", []byte("1")))
	assert.FileExists(t, filepath.Join(root, "a", "x"))

	for _, uri := range []string{"", "ftp://host/x", "minio://localhost:9000/"} {
		_, err := OpenStore(ctx, uri)
		assert.ErrorIs(t, err, status.ErrInvalidArgs, uri)
	}
}

func TestResolve(t *testing.T) {
	pf := &PlanFile{dir: "/plans"}
	assert.Equal(t, "/plans/seg", pf.resolve("seg"))
	assert.Equal(t, "/abs/seg", pf.resolve("/abs/seg"))
	assert.Equal(t, "s3://bucket/seg", pf.resolve("s3://bucket/seg"))
	assert.Equal(t, "file:///x", pf.resolve("file:///x"))

	assert.False(t, hasScheme("a/b:c//"))
	assert.False(t, hasScheme("c:"))
	assert.True(t, hasScheme("minio://h/b"))
}
