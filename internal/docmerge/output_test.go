package docmerge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
)

func TestOutputMapper(t *testing.T) {
	m := fakeMapper{
		0: {SegmentID: 1, DocID: 0},
		1: {SegmentID: 2, DocID: 0},
		2: {SegmentID: 3, DocID: 0},
	}
	targets := []segment.Meta{{ID: 1}, {ID: 2}}

	var om OutputMapper[[]model.DocID]
	require.NoError(t, om.Init(m, targets, func(i int, meta segment.Meta) ([]model.DocID, error) {
		return nil, nil
	}))

	for old := model.DocID(0); old < 4; old++ {
		out, ok := om.Output(old)
		if !ok {
			continue
		}
		*out = append(*out, old)
	}
	assert.Equal(t, [][]model.DocID{{0}, {1}}, om.Outputs())

	out, ok := om.OutputBySegmentID(2)
	require.True(t, ok)
	assert.Equal(t, []model.DocID{1}, *out)
	_, ok = om.OutputBySegmentID(3)
	assert.False(t, ok)

	released := 0
	om.Clear(func([]model.DocID) { released++ })
	assert.Equal(t, 2, released)
	assert.Empty(t, om.Outputs())
}

func TestOutputMapperInitFailure(t *testing.T) {
	targets := []segment.Meta{{ID: 1}, {ID: 2}}
	boom := errors.New("boom")

	var om OutputMapper[int]
	err := om.Init(fakeMapper{}, targets, func(i int, _ segment.Meta) (int, error) {
		if i == 1 {
			return 0, boom
		}
		return 42, nil
	})
	assert.ErrorIs(t, err, boom)

	var released []int
	om.Clear(func(v int) { released = append(released, v) })
	assert.Equal(t, []int{42}, released)
}
