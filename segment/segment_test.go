package segment

import (
	"context"
	"testing"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := blobstore.NewDir(blobstore.NewMemoryStore(), "segment_4")

	_, err := Open(ctx, dir)
	assert.ErrorIs(t, err, status.ErrNotFound)

	require.NoError(t, WriteInfo(ctx, dir, Info{
		SegmentID: 4,
		DocCount:  10,
		Indexes:   []string{"summary", "attribute/price", "summary"},
	}))

	seg, err := Open(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, model.SegmentID(4), seg.ID())
	assert.Equal(t, uint32(10), seg.DocCount())
	assert.Equal(t, []string{"attribute/price", "summary"}, seg.Info().Indexes)
	assert.True(t, seg.HasIndex(KindAttribute, "price"))
	assert.False(t, seg.HasIndex(KindAttribute, "title"))
	assert.True(t, seg.HasIndex(KindSummary, ""))
	assert.False(t, seg.HasIndex(KindSource, ""))

	require.NoError(t, dir.WriteFile(ctx, InfoFile, []byte("{")))
	_, err = Open(ctx, dir)
	assert.ErrorIs(t, err, status.ErrCorruption)
}

func TestLayout(t *testing.T) {
	seg := blobstore.NewDir(blobstore.NewMemoryStore(), "seg")

	assert.Equal(t, "seg/attribute/price", AttributeDirOf(seg, "price", 0, 0).Path())
	assert.Equal(t, "seg/attribute/price/slice_1", AttributeDirOf(seg, "price", 2, 1).Path())
	assert.Equal(t, "seg/source/group_1", SourceGroupDirOf(seg, 1, 2).Path())
	assert.Equal(t, "seg/source/meta", SourceGroupDirOf(seg, 2, 2).Path())
	assert.Equal(t, "seg/summary", SummaryGroupDirOf(seg, "default", true).Path())
	assert.Equal(t, "seg/summary/detail", SummaryGroupDirOf(seg, "detail", false).Path())
}

func TestMergeInfos(t *testing.T) {
	store := blobstore.NewMemoryStore()
	a := NewDiskSegment(Info{SegmentID: 1, DocCount: 2}, blobstore.NewDir(store, "a"))
	b := NewDiskSegment(Info{SegmentID: 2, DocCount: 3}, blobstore.NewDir(store, "b"))

	infos := NewMergeInfos([]Segment{a, b}, []Meta{{ID: 7}, {ID: 8}})
	require.NoError(t, infos.Validate())
	assert.Equal(t, model.DocID(0), infos.SrcSegments[0].BaseDocID)
	assert.Equal(t, model.DocID(2), infos.SrcSegments[1].BaseDocID)
	assert.Equal(t, uint32(5), infos.TotalDocCount())
	assert.Equal(t, "[1 2]->[7 8]", infos.String())

	idx, ok := infos.TargetIndex(8)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = infos.TargetIndex(9)
	assert.False(t, ok)

	infos.SrcSegments[1].BaseDocID = 3
	assert.ErrorIs(t, infos.Validate(), status.ErrInvalidArgs)

	dup := NewMergeInfos([]Segment{a}, []Meta{{ID: 7}, {ID: 7}})
	assert.ErrorIs(t, dup.Validate(), status.ErrInvalidArgs)

	none := NewMergeInfos([]Segment{a}, nil)
	assert.ErrorIs(t, none.Validate(), status.ErrInvalidArgs)
}
