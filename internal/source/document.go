package source

import (
	"encoding/binary"
	"slices"

	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/status"
)

// Field is one named raw value.
type Field struct {
	Name  string
	Value []byte
}

// Document is an ordered list of fields.
type Document []Field

// Get returns the value of the first field called name.
func (d Document) Get(name string) ([]byte, bool) {
	for _, f := range d {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns the field names in order.
func (d Document) Names() []string {
	names := make([]string, len(d))
	for i, f := range d {
		names[i] = f.Name
	}
	return names
}

// Encode serializes d as [uvarint n]{[uvarint len]name [uvarint len]value}.
func (d Document) Encode() []byte {
	size := binary.MaxVarintLen32
	for _, f := range d {
		size += 2*binary.MaxVarintLen32 + len(f.Name) + len(f.Value)
	}
	out := binary.AppendUvarint(make([]byte, 0, size), uint64(len(d)))
	for _, f := range d {
		out = appendBytes(out, []byte(f.Name))
		out = appendBytes(out, f.Value)
	}
	return out
}

// DecodeDocument decodes a value written by Document.Encode. Field values
// alias data.
func DecodeDocument(data []byte) (Document, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 || n > uint64(len(data)) {
		return nil, status.Corruptionf("source document: bad field count")
	}
	data = data[k:]
	doc := make(Document, 0, n)
	for range n {
		name, rest, err := readBytes(data)
		if err != nil {
			return nil, err
		}
		value, rest, err := readBytes(rest)
		if err != nil {
			return nil, err
		}
		doc = append(doc, Field{Name: string(name), Value: value})
		data = rest
	}
	if len(data) != 0 {
		return nil, status.Corruptionf("source document: %d trailing bytes", len(data))
	}
	return doc, nil
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func readBytes(data []byte) ([]byte, []byte, error) {
	l, k := binary.Uvarint(data)
	if k <= 0 || l > uint64(len(data)-k) {
		return nil, nil, status.Corruptionf("source document: bad length")
	}
	end := k + int(l)
	return data[k:end:end], data[end:], nil
}

// encodeMeta stores the field names of a document in order.
func encodeMeta(names []string) []byte {
	out := binary.AppendUvarint(nil, uint64(len(names)))
	for _, n := range names {
		out = appendBytes(out, []byte(n))
	}
	return out
}

func decodeMeta(data []byte) ([]string, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 || n > uint64(len(data)) {
		return nil, status.Corruptionf("source meta: bad field count")
	}
	data = data[k:]
	names := make([]string, 0, n)
	for range n {
		name, rest, err := readBytes(data)
		if err != nil {
			return nil, err
		}
		names = append(names, string(name))
		data = rest
	}
	return names, nil
}

// split assigns the fields of doc to groups and returns the names of the
// stored fields. A field goes to the first group that lists it; other
// fields go to the last group in all_field or user_define mode and are
// dropped if there is none.
func split(cfg *config.SourceConfig, doc Document) ([]Document, []string) {
	groups := make([]Document, cfg.GroupCount())
	names := make([]string, 0, len(doc))
	for _, f := range doc {
		if g := groupOf(cfg, f.Name); g >= 0 {
			groups[g] = append(groups[g], f)
			names = append(names, f.Name)
		}
	}
	return groups, names
}

func groupOf(cfg *config.SourceConfig, name string) int {
	catchAll := -1
	for i, g := range cfg.Groups {
		switch g.FieldMode {
		case config.FieldModeSpecified:
			if slices.Contains(g.Fields, name) {
				return i
			}
		default:
			if len(g.Fields) > 0 && slices.Contains(g.Fields, name) {
				return i
			}
			catchAll = i
		}
	}
	return catchAll
}
