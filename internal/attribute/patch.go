package attribute

import (
	"context"
	"encoding/binary"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/internal/hash"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// Patch file:
//
//	[Magic uint32][Version uint8][pad 3][Count uint32]
//	Count records sorted by doc: [Doc uint32][Flags uint8][uvarint len][value]
//	[CRC32C uint32] of everything before
const (
	patchMagic      = 0x48435450 // "PTCH"
	patchVersion    = 1
	patchHeaderSize = 12
	patchFlagNull   = 1 << 0

	patchSuffix = ".patch"
)

// PatchRecord is the update of one document.
type PatchRecord struct {
	Doc    model.DocID
	Value  []byte
	IsNull bool
}

// PatchFileName returns the name of the patch file issued by segment src
// for documents of segment dest.
func PatchFileName(src, dest model.SegmentID) string {
	return fmt.Sprintf("%d_%d%s", src, dest, patchSuffix)
}

// ParsePatchFileName is the inverse of PatchFileName.
func ParsePatchFileName(name string) (src, dest model.SegmentID, ok bool) {
	base, found := strings.CutSuffix(name, patchSuffix)
	if !found {
		return 0, 0, false
	}
	a, b, found := strings.Cut(base, "_")
	if !found {
		return 0, 0, false
	}
	s, err1 := strconv.ParseInt(a, 10, 32)
	d, err2 := strconv.ParseInt(b, 10, 32)
	if err1 != nil || err2 != nil || s < 0 || d < 0 {
		return 0, 0, false
	}
	return model.SegmentID(s), model.SegmentID(d), true
}

// PatchFileWriter collects updates for one destination segment. A later
// Add for the same document replaces the earlier one.
type PatchFileWriter struct {
	records map[model.DocID]PatchRecord
}

func NewPatchFileWriter() *PatchFileWriter {
	return &PatchFileWriter{records: make(map[model.DocID]PatchRecord)}
}

func (w *PatchFileWriter) Add(doc model.DocID, value []byte, isNull bool) {
	w.records[doc] = PatchRecord{Doc: doc, Value: value, IsNull: isNull}
}

func (w *PatchFileWriter) Len() int { return len(w.records) }

// Encode returns the patch file content.
func (w *PatchFileWriter) Encode() []byte {
	records := make([]PatchRecord, 0, len(w.records))
	for _, r := range w.records {
		records = append(records, r)
	}
	slices.SortFunc(records, func(a, b PatchRecord) int { return int(a.Doc) - int(b.Doc) })
	return encodePatch(records)
}

// Write stores the patch file as dir/name.
func (w *PatchFileWriter) Write(ctx context.Context, dir blobstore.Dir, name string) error {
	return status.IOError(dir.WriteFile(ctx, name, w.Encode()), "write patch %s in %s", name, dir)
}

func encodePatch(records []PatchRecord) []byte {
	out := make([]byte, patchHeaderSize, patchHeaderSize+len(records)*8)
	binary.LittleEndian.PutUint32(out[0:], patchMagic)
	out[4] = patchVersion
	binary.LittleEndian.PutUint32(out[8:], uint32(len(records)))
	for _, r := range records {
		out = binary.LittleEndian.AppendUint32(out, uint32(r.Doc))
		var flags byte
		if r.IsNull {
			flags |= patchFlagNull
		}
		out = append(out, flags)
		out = binary.AppendUvarint(out, uint64(len(r.Value)))
		out = append(out, r.Value...)
	}
	return binary.LittleEndian.AppendUint32(out, hash.CRC32C(out))
}

func decodePatch(data []byte) ([]PatchRecord, error) {
	if len(data) < patchHeaderSize+4 {
		return nil, status.Corruptionf("patch: file too small")
	}
	body := data[:len(data)-4]
	if hash.CRC32C(body) != binary.LittleEndian.Uint32(data[len(data)-4:]) {
		return nil, status.Corruptionf("patch: checksum mismatch")
	}
	if binary.LittleEndian.Uint32(body[0:]) != patchMagic {
		return nil, status.Corruptionf("patch: bad magic")
	}
	if body[4] != patchVersion {
		return nil, status.Corruptionf("patch: unsupported version %d", body[4])
	}
	count := binary.LittleEndian.Uint32(body[8:])
	p := body[patchHeaderSize:]
	records := make([]PatchRecord, 0, min(int(count), len(p)/6))
	for i := uint32(0); i < count; i++ {
		if len(p) < 5 {
			return nil, status.Corruptionf("patch: record %d truncated", i)
		}
		r := PatchRecord{
			Doc:    model.DocID(binary.LittleEndian.Uint32(p)),
			IsNull: p[4]&patchFlagNull != 0,
		}
		n, k := binary.Uvarint(p[5:])
		if k <= 0 || n > uint64(len(p)-5-k) {
			return nil, status.Corruptionf("patch: record %d truncated", i)
		}
		start := 5 + k
		r.Value = p[start : start+int(n) : start+int(n)]
		p = p[start+int(n):]
		if len(records) > 0 && records[len(records)-1].Doc >= r.Doc {
			return nil, status.Corruptionf("patch: doc %d out of order", r.Doc)
		}
		records = append(records, r)
	}
	if len(p) != 0 {
		return nil, status.Corruptionf("patch: %d trailing bytes", len(p))
	}
	return records, nil
}

// PatchFileInfo locates one patch file. SrcSegment orders patch files of
// the same destination: higher values hold newer updates.
type PatchFileInfo struct {
	Dir         blobstore.Dir
	Name        string
	SrcSegment  model.SegmentID
	DestSegment model.SegmentID
}

// PatchInfos maps a destination segment to its patch files, oldest source
// segment first.
type PatchInfos map[model.SegmentID][]PatchFileInfo

// ScanPatchInfos discovers the patch files of an attribute in segs.
func ScanPatchInfos(ctx context.Context, segs []segment.Segment, attr string) (PatchInfos, error) {
	infos := make(PatchInfos)
	for _, seg := range segs {
		if !seg.HasIndex(segment.KindAttribute, attr) {
			continue
		}
		dir := seg.Directory().Sub(segment.AttributeDir, attr)
		names, err := dir.List(ctx)
		if err != nil {
			return nil, status.IOError(err, "list %s", dir)
		}
		for _, name := range names {
			if path.Dir(name) != "." {
				continue
			}
			src, dest, ok := ParsePatchFileName(name)
			if !ok {
				continue
			}
			infos[dest] = append(infos[dest], PatchFileInfo{Dir: dir, Name: name, SrcSegment: src, DestSegment: dest})
		}
	}
	for _, files := range infos {
		slices.SortFunc(files, func(a, b PatchFileInfo) int { return int(a.SrcSegment) - int(b.SrcSegment) })
	}
	return infos, nil
}
