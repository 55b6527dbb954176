package docmerge

import (
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
)

// OutputMapper routes documents to one output per open target segment. It
// owns the outputs until Clear.
type OutputMapper[T any] struct {
	mapper  docmapper.DocMapper
	index   map[model.SegmentID]int
	outputs []T
}

// Init calls create once per target in order. On error the outputs created
// so far stay registered so that Clear can release them.
func (m *OutputMapper[T]) Init(mapper docmapper.DocMapper, targets []segment.Meta, create func(i int, meta segment.Meta) (T, error)) error {
	m.mapper = mapper
	m.index = make(map[model.SegmentID]int, len(targets))
	m.outputs = make([]T, 0, len(targets))
	for i, meta := range targets {
		out, err := create(i, meta)
		if err != nil {
			return err
		}
		m.index[meta.ID] = len(m.outputs)
		m.outputs = append(m.outputs, out)
	}
	return nil
}

// Output returns the output owning the global doc id, or false when the
// document is dropped or routed to a segment that is not open here.
func (m *OutputMapper[T]) Output(old model.DocID) (*T, bool) {
	seg, _ := m.mapper.Map(old)
	return m.OutputBySegmentID(seg)
}

// OutputBySegmentID returns the output of target segment seg.
func (m *OutputMapper[T]) OutputBySegmentID(seg model.SegmentID) (*T, bool) {
	idx, ok := m.index[seg]
	if !ok {
		return nil, false
	}
	return &m.outputs[idx], true
}

// Outputs returns the outputs in target order.
func (m *OutputMapper[T]) Outputs() []T { return m.outputs }

// Clear calls release on every output, if non-nil, and forgets them.
func (m *OutputMapper[T]) Clear(release func(T)) {
	if release != nil {
		for _, out := range m.outputs {
			release(out)
		}
	}
	m.outputs = nil
	m.index = nil
}
