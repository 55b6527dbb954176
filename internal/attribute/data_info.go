package attribute

import (
	"context"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/codec"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// DataInfo sizes read buffers of a column.
type DataInfo struct {
	UniqItemCount uint32 `json:"uniq_item_count"`
	MaxItemLength uint32 `json:"max_item_length"`
}

// StoreDataInfo writes the data_info file of dir.
func StoreDataInfo(ctx context.Context, dir blobstore.Dir, info DataInfo) error {
	data, err := codec.Default.Marshal(info)
	if err != nil {
		return err
	}
	return status.IOError(dir.WriteFile(ctx, segment.DataInfoFile, data), "write data info in %s", dir)
}

// LoadDataInfo reads the data_info file of dir.
func LoadDataInfo(ctx context.Context, dir blobstore.Dir) (DataInfo, error) {
	var info DataInfo
	data, err := dir.ReadFile(ctx, segment.DataInfoFile)
	if err != nil {
		return info, status.IOError(err, "read data info in %s", dir)
	}
	if err := codec.Default.Unmarshal(data, &info); err != nil {
		return info, status.Corruptionf("data info in %s: %v", dir, err)
	}
	return info, nil
}

// SliceInfo describes how a sliced attribute splits its documents.
type SliceInfo struct {
	SliceCount int    `json:"slice_count"`
	DocCount   uint32 `json:"doc_count"`
}

// Range returns the inclusive doc range of slice idx. The range is empty
// (begin > end) when the slice holds no documents.
func (s SliceInfo) Range(idx int) (begin, end model.DocID) {
	return SliceRange(s.DocCount, s.SliceCount, idx)
}

// SliceRange splits docCount documents into sliceCount slices of
// ceil(docCount/sliceCount) documents and returns the inclusive range of
// slice idx.
func SliceRange(docCount uint32, sliceCount, idx int) (begin, end model.DocID) {
	if sliceCount <= 1 {
		return 0, model.DocID(docCount) - 1
	}
	per := (int64(docCount) + int64(sliceCount) - 1) / int64(sliceCount)
	b := int64(idx) * per
	e := min(b+per, int64(docCount)) - 1
	return model.DocID(b), model.DocID(e)
}

// StoreSliceInfo writes the slice_info file of an attribute directory.
func StoreSliceInfo(ctx context.Context, dir blobstore.Dir, info SliceInfo) error {
	data, err := codec.Default.Marshal(info)
	if err != nil {
		return err
	}
	return status.IOError(dir.WriteFile(ctx, segment.SliceInfo, data), "write slice info in %s", dir)
}

// LoadSliceInfo reads the slice_info file of an attribute directory.
func LoadSliceInfo(ctx context.Context, dir blobstore.Dir) (SliceInfo, error) {
	var info SliceInfo
	data, err := dir.ReadFile(ctx, segment.SliceInfo)
	if blobstore.IsNotFound(err) {
		return info, status.NotFoundf("slice info in %s", dir)
	}
	if err != nil {
		return info, status.IOError(err, "read slice info in %s", dir)
	}
	if err := codec.Default.Unmarshal(data, &info); err != nil {
		return info, status.Corruptionf("slice info in %s: %v", dir, err)
	}
	return info, nil
}
