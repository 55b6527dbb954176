package attribute

import (
	"context"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/internal/varlen"
	"github.com/hupe1980/indexmerge/resource"
	"github.com/hupe1980/indexmerge/segment"
)

// WriteSingleValue writes the column of a single-value attribute into the
// segment directory segDir. nulls may be nil.
func WriteSingleValue[T Fixed](ctx context.Context, segDir blobstore.Dir, cfg *config.AttributeConfig, values []T, nulls []bool, rc *resource.Controller) error {
	dir := segment.AttributeDirOf(segDir, cfg.Name, 1, 0)
	w, err := newColumnWriter(ctx, dir, newColumnOptions[T](cfg), rc)
	if err != nil {
		return err
	}
	for i, v := range values {
		isNull := nulls != nil && nulls[i]
		if err := w.append(toBits(v), isNull); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// WriteMultiValue writes the column of a variable-length attribute into
// the segment directory segDir. Values are in stored form, see
// EncodeMulti and EncodeStrings.
func WriteMultiValue(ctx context.Context, segDir blobstore.Dir, cfg *config.AttributeConfig, values [][]byte, rc *resource.Controller) error {
	dir := segment.AttributeDirOf(segDir, cfg.Name, 1, 0)
	w := varlen.NewWriter(varlen.WithResourceController(rc))
	if err := w.Init(ctx, dir, segment.OffsetFile, segment.DataFile, ParamForAttribute(cfg)); err != nil {
		return err
	}
	for _, v := range values {
		if err := w.AppendValue(v); err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return StoreDataInfo(ctx, dir, DataInfo{UniqItemCount: w.DataItemCount(), MaxItemLength: w.MaxItemLen()})
}
