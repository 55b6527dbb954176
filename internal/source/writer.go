package source

import (
	"context"
	"errors"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/internal/varlen"
	"github.com/hupe1980/indexmerge/resource"
	"github.com/hupe1980/indexmerge/segment"
)

// GroupWriter writes the column of one source group while a segment is
// built.
type GroupWriter struct {
	w *varlen.Writer
}

// NewGroupWriter creates the column of group id, or of the meta column,
// below segDir.
func NewGroupWriter(ctx context.Context, segDir blobstore.Dir, cfg *config.SourceConfig, id int, rc *resource.Controller) (*GroupWriter, error) {
	w := varlen.NewWriter(varlen.WithResourceController(rc))
	dir := segment.SourceGroupDirOf(segDir, id, cfg.GroupCount())
	if err := w.Init(ctx, dir, segment.OffsetFile, segment.DataFile, paramFor(cfg, id)); err != nil {
		return nil, err
	}
	return &GroupWriter{w: w}, nil
}

// Add appends the stored form of the next document.
func (g *GroupWriter) Add(value []byte) error { return g.w.AppendValue(value) }

func (g *GroupWriter) Close() error { return g.w.Close() }

// Writer splits documents into groups and writes every group and the meta
// column.
type Writer struct {
	cfg    *config.SourceConfig
	groups []*GroupWriter
}

// NewWriter creates the source index below segDir.
func NewWriter(ctx context.Context, segDir blobstore.Dir, cfg *config.SourceConfig, rc *resource.Controller) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &Writer{cfg: cfg}
	for id := range cfg.GroupCount() + 1 {
		g, err := NewGroupWriter(ctx, segDir, cfg, id, rc)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		w.groups = append(w.groups, g)
	}
	return w, nil
}

// AddDocument appends the next document.
func (w *Writer) AddDocument(doc Document) error {
	parts, names := split(w.cfg, doc)
	for id, part := range parts {
		if err := w.groups[id].Add(part.Encode()); err != nil {
			return err
		}
	}
	return w.groups[len(w.groups)-1].Add(encodeMeta(names))
}

func (w *Writer) Close() error {
	var err error
	for _, g := range w.groups {
		err = errors.Join(err, g.Close())
	}
	return err
}
