package docmapper

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/internal/hash"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

const (
	binaryMagic   = 0x504d4344 // "DCMP"
	binaryVersion = 1
	headerSize    = 16
)

// MarshalBinary encodes the map.
//
// Format:
// Magic (4 bytes)
// Version (4 bytes)
// Checksum (4 bytes) - CRC32C of payload
// PayloadLength (4 bytes)
// Payload:
//
//	OldDocCount (4 bytes)
//	NumTargets (4 bytes)
//	Targets...
//	  SegmentID (4 bytes)
//	  BitmapLen (4 bytes)
//	  Bitmap (roaring, old global ids routed to the target)
//
// New local ids are the ranks within each bitmap.
func (m *ReclaimMap) MarshalBinary() ([]byte, error) {
	bitmaps := make([]*roaring.Bitmap, len(m.targets))
	for i := range bitmaps {
		bitmaps[i] = roaring.New()
	}
	for old, idx := range m.target {
		if idx >= 0 {
			bitmaps[idx].Add(uint32(old))
		}
	}

	payload := binary.LittleEndian.AppendUint32(nil, uint32(len(m.target)))
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(m.targets)))
	for i, seg := range m.targets {
		bitmaps[i].RunOptimize()
		data, err := bitmaps[i].ToBytes()
		if err != nil {
			return nil, err
		}
		payload = binary.LittleEndian.AppendUint32(payload, uint32(seg))
		payload = binary.LittleEndian.AppendUint32(payload, uint32(len(data)))
		payload = append(payload, data...)
	}

	header := make([]byte, headerSize, headerSize+len(payload))
	binary.LittleEndian.PutUint32(header[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(header[4:8], binaryVersion)
	binary.LittleEndian.PutUint32(header[8:12], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))
	return append(header, payload...), nil
}

// UnmarshalReclaimMap decodes a map written by MarshalBinary.
func UnmarshalReclaimMap(data []byte) (*ReclaimMap, error) {
	if len(data) < headerSize {
		return nil, status.Corruptionf("doc mapper: short header")
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != binaryMagic {
		return nil, status.Corruptionf("doc mapper: invalid magic: %x", magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != binaryVersion {
		return nil, status.Corruptionf("doc mapper: unsupported version: %d", version)
	}
	checksum := binary.LittleEndian.Uint32(data[8:12])
	length := binary.LittleEndian.Uint32(data[12:16])
	payload := data[headerSize:]
	if uint32(len(payload)) != length {
		return nil, status.Corruptionf("doc mapper: payload length %d, want %d", len(payload), length)
	}
	if hash.CRC32C(payload) != checksum {
		return nil, status.Corruptionf("doc mapper: checksum mismatch")
	}

	r := bytes.NewReader(payload)
	var oldCount, numTargets uint32
	if err := binary.Read(r, binary.LittleEndian, &oldCount); err != nil {
		return nil, status.Corruptionf("doc mapper: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &numTargets); err != nil {
		return nil, status.Corruptionf("doc mapper: %v", err)
	}

	targets := make([]model.SegmentID, numTargets)
	target := make([]int32, oldCount)
	for i := range target {
		target[i] = -1
	}
	for i := range targets {
		var seg, n uint32
		if err := binary.Read(r, binary.LittleEndian, &seg); err != nil {
			return nil, status.Corruptionf("doc mapper: %v", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, status.Corruptionf("doc mapper: %v", err)
		}
		if int(n) > r.Len() {
			return nil, status.Corruptionf("doc mapper: bitmap truncated")
		}
		buf := make([]byte, n)
		_, _ = r.Read(buf)
		bm := roaring.New()
		if _, err := bm.FromBuffer(buf); err != nil {
			return nil, status.Corruptionf("doc mapper: target %d: %v", seg, err)
		}
		targets[i] = model.SegmentID(seg)

		it := bm.Iterator()
		for it.HasNext() {
			old := it.Next()
			if old >= oldCount || target[old] >= 0 {
				return nil, status.Corruptionf("doc mapper: doc %d routed twice or out of range", old)
			}
			target[old] = int32(i)
		}
	}
	return newReclaimMap(targets, target), nil
}

// Store writes m as dir/name.
func Store(ctx context.Context, dir blobstore.Dir, name string, m *ReclaimMap) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode doc mapper %s: %w", name, err)
	}
	return status.IOError(dir.WriteFile(ctx, name, data), "store doc mapper %s", name)
}

// Load reads a map written by Store.
func Load(ctx context.Context, dir blobstore.Dir, name string) (*ReclaimMap, error) {
	data, err := dir.ReadFile(ctx, name)
	if blobstore.IsNotFound(err) {
		return nil, status.NotFoundf("doc mapper %s in %s", name, dir)
	}
	if err != nil {
		return nil, status.IOError(err, "load doc mapper %s", name)
	}
	return UnmarshalReclaimMap(data)
}

// ReadDeletionMap returns the deleted local doc ids of seg. A segment
// without a deletion map has no deletions.
func ReadDeletionMap(ctx context.Context, seg segment.Segment) (*roaring.Bitmap, error) {
	data, err := seg.Directory().ReadFile(ctx, segment.DeletionMapFile)
	if blobstore.IsNotFound(err) {
		return roaring.New(), nil
	}
	if err != nil {
		return nil, status.IOError(err, "read deletion map of segment %d", seg.ID())
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, status.Corruptionf("deletion map of segment %d: %v", seg.ID(), err)
	}
	return bm, nil
}

// WriteDeletionMap persists the deleted local doc ids of a segment.
func WriteDeletionMap(ctx context.Context, dir blobstore.Dir, deleted *roaring.Bitmap) error {
	data, err := deleted.ToBytes()
	if err != nil {
		return err
	}
	return status.IOError(dir.WriteFile(ctx, segment.DeletionMapFile, data), "write deletion map in %s", dir)
}
