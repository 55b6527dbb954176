package blobstore

import (
	"context"
	"errors"
	"path"
	"strings"
)

// Dir is a directory-like view of a store under a name prefix.
type Dir struct {
	store  BlobStore
	prefix string
}

// NewDir scopes store to prefix.
func NewDir(store BlobStore, prefix string) Dir {
	return Dir{store: store, prefix: clean(prefix)}
}

func clean(p string) string {
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// Store returns the underlying store.
func (d Dir) Store() BlobStore { return d.store }

// Path returns the prefix relative to the store root.
func (d Dir) Path() string { return d.prefix }

func (d Dir) String() string { return "/" + d.prefix }

// Sub returns the child directory at elem.
func (d Dir) Sub(elem ...string) Dir {
	return Dir{store: d.store, prefix: clean(path.Join(append([]string{d.prefix}, elem...)...))}
}

// Name returns the full blob name of file.
func (d Dir) Name(file string) string {
	return clean(path.Join(d.prefix, file))
}

func (d Dir) Open(ctx context.Context, file string) (Blob, error) {
	return d.store.Open(ctx, d.Name(file))
}

func (d Dir) Create(ctx context.Context, file string) (WritableBlob, error) {
	return d.store.Create(ctx, d.Name(file))
}

func (d Dir) Delete(ctx context.Context, file string) error {
	return d.store.Delete(ctx, d.Name(file))
}

// ReadFile returns the content of file.
func (d Dir) ReadFile(ctx context.Context, file string) ([]byte, error) {
	b, err := d.Open(ctx, file)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return ReadAll(ctx, b)
}

// WriteFile stores data as file, replacing any previous content.
func (d Dir) WriteFile(ctx context.Context, file string, data []byte) error {
	return d.store.Put(ctx, d.Name(file), data)
}

// Exists reports whether file is present.
func (d Dir) Exists(ctx context.Context, file string) (bool, error) {
	b, err := d.Open(ctx, file)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, b.Close()
}

// List returns every blob below d, relative to d, sorted.
func (d Dir) List(ctx context.Context) ([]string, error) {
	prefix := d.listPrefix()
	names, err := d.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if rel := strings.TrimPrefix(n, prefix); rel != "" {
			out = append(out, rel)
		}
	}
	return out, nil
}

// RemoveAll deletes every blob below d.
func (d Dir) RemoveAll(ctx context.Context) error {
	if r, ok := d.store.(PrefixRemover); ok {
		return r.RemovePrefix(ctx, d.listPrefix())
	}
	names, err := d.store.List(ctx, d.listPrefix())
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := d.store.Delete(ctx, n); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (d Dir) listPrefix() string {
	if d.prefix == "" {
		return ""
	}
	return d.prefix + "/"
}
