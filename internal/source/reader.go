package source

import (
	"context"
	"errors"

	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/internal/varlen"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// Reader rehydrates documents from the source index of a segment.
type Reader struct {
	groups []*varlen.Reader
	meta   *varlen.Reader
}

// Open opens every group and the meta column of seg.
func Open(ctx context.Context, seg segment.Segment, cfg *config.SourceConfig) (*Reader, error) {
	r := &Reader{}
	for id := range cfg.GroupCount() + 1 {
		dir := segment.SourceGroupDirOf(seg.Directory(), id, cfg.GroupCount())
		c, err := varlen.Open(ctx, dir, segment.OffsetFile, segment.DataFile, paramFor(cfg, id))
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		if c.DocCount() != seg.DocCount() {
			_ = c.Close()
			_ = r.Close()
			return nil, status.Corruptionf("source %s: %d docs, segment has %d", dir, c.DocCount(), seg.DocCount())
		}
		if id == cfg.GroupCount() {
			r.meta = c
		} else {
			r.groups = append(r.groups, c)
		}
	}
	return r, nil
}

// Document returns doc with its fields in the original order.
func (r *Reader) Document(doc model.DocID) (Document, error) {
	raw, err := r.meta.GetValue(doc)
	if err != nil {
		return nil, err
	}
	names, err := decodeMeta(raw)
	if err != nil {
		return nil, err
	}
	fields := make(map[string][]byte, len(names))
	for _, g := range r.groups {
		raw, err := g.GetValue(doc)
		if err != nil {
			return nil, err
		}
		part, err := DecodeDocument(raw)
		if err != nil {
			return nil, err
		}
		for _, f := range part {
			fields[f.Name] = f.Value
		}
	}
	out := make(Document, 0, len(names))
	for _, name := range names {
		v, ok := fields[name]
		if !ok {
			return nil, status.Corruptionf("source doc %d: field %s in meta but in no group", doc, name)
		}
		out = append(out, Field{Name: name, Value: v})
	}
	return out, nil
}

func (r *Reader) Close() error {
	var err error
	for _, g := range r.groups {
		err = errors.Join(err, g.Close())
	}
	if r.meta != nil {
		err = errors.Join(err, r.meta.Close())
	}
	return err
}
