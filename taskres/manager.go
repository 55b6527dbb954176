// Package taskres holds the named resources shared by the mergers of one
// merge task.
package taskres

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/status"
)

// Loader decodes a persisted resource named name from dir.
type Loader func(ctx context.Context, dir blobstore.Dir, name string) (any, error)

type key struct {
	name string
	typ  string
}

// Manager caches resources by (name, type). Resources that are not added
// explicitly are loaded once from the resource directory. It is safe for
// concurrent use.
type Manager struct {
	dir *blobstore.Dir

	mu        sync.Mutex
	loaders   map[string]Loader
	resources map[key]any
}

// NewManager creates a manager that loads persisted resources from dir.
func NewManager(dir blobstore.Dir) *Manager {
	m := NewMemoryManager()
	m.dir = &dir
	return m
}

// NewMemoryManager creates a manager holding only added resources.
func NewMemoryManager() *Manager {
	m := &Manager{
		loaders:   make(map[string]Loader),
		resources: make(map[key]any),
	}
	m.RegisterLoader(docmapper.ResourceType, func(ctx context.Context, dir blobstore.Dir, name string) (any, error) {
		return docmapper.Load(ctx, dir, name)
	})
	return m
}

// Dir returns the resource directory, if any.
func (m *Manager) Dir() (blobstore.Dir, bool) {
	if m.dir == nil {
		return blobstore.Dir{}, false
	}
	return *m.dir, true
}

// RegisterLoader sets the loader for resources of typ.
func (m *Manager) RegisterLoader(typ string, l Loader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaders[typ] = l
}

// AddResource registers an in-memory resource, replacing any previous one.
func (m *Manager) AddResource(name, typ string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[key{name, typ}] = v
}

// LoadResource returns the resource, loading it on first use. It returns
// status.ErrNotFound if the resource neither was added nor is persisted.
func (m *Manager) LoadResource(ctx context.Context, name, typ string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{name, typ}
	if v, ok := m.resources[k]; ok {
		return v, nil
	}
	l, ok := m.loaders[typ]
	if !ok || m.dir == nil {
		return nil, status.NotFoundf("resource %s of type %s", name, typ)
	}
	v, err := l(ctx, *m.dir, name)
	if err != nil {
		return nil, fmt.Errorf("load resource %s: %w", name, err)
	}
	m.resources[k] = v
	return v, nil
}

// Load returns the resource as T.
func Load[T any](ctx context.Context, m *Manager, name, typ string) (T, error) {
	var zero T
	v, err := m.LoadResource(ctx, name, typ)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, status.InvalidArgsf("resource %s of type %s is %T", name, typ, v)
	}
	return t, nil
}

// LoadDocMapper returns the doc mapper resource name.
func (m *Manager) LoadDocMapper(ctx context.Context, name string) (docmapper.DocMapper, error) {
	return Load[docmapper.DocMapper](ctx, m, name, docmapper.ResourceType)
}
