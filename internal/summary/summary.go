package summary

import (
	"context"
	"encoding/binary"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/internal/varlen"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/resource"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// ParamForSummary returns the column layout of a summary group.
func ParamForSummary(g *config.SummaryGroupConfig) varlen.Param {
	p := varlen.Param{
		EnableAdaptiveOffset: g.AdaptiveOffset,
		DataItemUniqEncode:   g.UniqEncode,
		AppendDataItemLength: g.UniqEncode,
	}
	if c := g.Compressor(); c.Enabled() {
		p.DataCompressor = c.Compressor
		p.CompressBufferSize = c.BlockSize()
		p.CompressLevel = c.Level
	}
	return p
}

// EncodeFields stores the field values of a group in field order as
// [uvarint n]{[uvarint len][value]}.
func EncodeFields(values [][]byte) []byte {
	out := binary.AppendUvarint(nil, uint64(len(values)))
	for _, v := range values {
		out = binary.AppendUvarint(out, uint64(len(v)))
		out = append(out, v...)
	}
	return out
}

// DecodeFields decodes a value written by EncodeFields. Values alias data.
func DecodeFields(data []byte) ([][]byte, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 || n > uint64(len(data)) {
		return nil, status.Corruptionf("summary: bad field count")
	}
	data = data[k:]
	out := make([][]byte, 0, n)
	for range n {
		l, k := binary.Uvarint(data)
		if k <= 0 || l > uint64(len(data)-k) {
			return nil, status.Corruptionf("summary: bad field length")
		}
		end := k + int(l)
		out = append(out, data[k:end:end])
		data = data[end:]
	}
	if len(data) != 0 {
		return nil, status.Corruptionf("summary: %d trailing bytes", len(data))
	}
	return out, nil
}

// GroupDir returns the directory of group g below segDir.
func GroupDir(segDir blobstore.Dir, g *config.SummaryGroupConfig) blobstore.Dir {
	return segment.SummaryGroupDirOf(segDir, g.Name, g.IsDefault())
}

// Writer writes one summary group while a segment is built.
type Writer struct {
	group *config.SummaryGroupConfig
	w     *varlen.Writer
}

func NewWriter(ctx context.Context, segDir blobstore.Dir, g *config.SummaryGroupConfig, rc *resource.Controller) (*Writer, error) {
	w := varlen.NewWriter(varlen.WithResourceController(rc))
	if err := w.Init(ctx, GroupDir(segDir, g), segment.OffsetFile, segment.DataFile, ParamForSummary(g)); err != nil {
		return nil, err
	}
	return &Writer{group: g, w: w}, nil
}

// AddDocument appends the next document. fields holds the values of the
// group's fields in order.
func (w *Writer) AddDocument(fields [][]byte) error {
	if len(fields) != len(w.group.Fields) {
		return status.InvalidArgsf("summary group %s: %d values for %d fields", w.group.Name, len(fields), len(w.group.Fields))
	}
	return w.w.AppendValue(EncodeFields(fields))
}

func (w *Writer) Close() error { return w.w.Close() }

// Reader reads one summary group of a segment.
type Reader struct {
	r *varlen.Reader
}

func Open(ctx context.Context, seg segment.Segment, g *config.SummaryGroupConfig) (*Reader, error) {
	r, err := varlen.Open(ctx, GroupDir(seg.Directory(), g), segment.OffsetFile, segment.DataFile, ParamForSummary(g))
	if err != nil {
		return nil, err
	}
	if r.DocCount() != seg.DocCount() {
		_ = r.Close()
		return nil, status.Corruptionf("summary group %s: %d docs, segment has %d", g.Name, r.DocCount(), seg.DocCount())
	}
	return &Reader{r: r}, nil
}

// Document returns the field values of doc.
func (r *Reader) Document(doc model.DocID) ([][]byte, error) {
	raw, err := r.r.GetValue(doc)
	if err != nil {
		return nil, err
	}
	return DecodeFields(raw)
}

func (r *Reader) Close() error { return r.r.Close() }
