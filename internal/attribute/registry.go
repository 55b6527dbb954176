package attribute

import (
	"github.com/hupe1980/indexmerge/config"
	"github.com/hupe1980/indexmerge/status"
)

// Factory creates an uninitialized merger.
type Factory func(opts Options) Merger

type registryKey struct {
	typ   config.FieldType
	multi bool
}

// Registry maps attribute types to merger factories.
type Registry struct {
	factories map[registryKey]Factory
}

// NewRegistry returns a registry of all built-in attribute types. Single
// string attributes are variable length and use the multi-value merger.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[registryKey]Factory)}
	registerFixed[int8](r, config.FieldInt8)
	registerFixed[uint8](r, config.FieldUint8)
	registerFixed[int16](r, config.FieldInt16)
	registerFixed[uint16](r, config.FieldUint16)
	registerFixed[int32](r, config.FieldInt32)
	registerFixed[uint32](r, config.FieldUint32)
	registerFixed[int64](r, config.FieldInt64)
	registerFixed[uint64](r, config.FieldUint64)
	registerFixed[float32](r, config.FieldFloat32)
	registerFixed[float64](r, config.FieldFloat64)

	strings := func(o Options) Merger { return NewMultiValueMerger[string](o) }
	r.Register(config.FieldString, false, strings)
	r.Register(config.FieldString, true, strings)
	return r
}

func registerFixed[T Fixed](r *Registry, typ config.FieldType) {
	r.Register(typ, false, func(o Options) Merger { return NewSingleValueMerger[T](o) })
	r.Register(typ, true, func(o Options) Merger { return NewMultiValueMerger[T](o) })
}

// Register sets the factory of (typ, multi), replacing any previous one.
func (r *Registry) Register(typ config.FieldType, multi bool, f Factory) {
	r.factories[registryKey{typ, multi}] = f
}

// Create returns a merger for cfg. It does not call Init.
func (r *Registry) Create(cfg *config.AttributeConfig, opts Options) (Merger, error) {
	f, ok := r.factories[registryKey{cfg.FieldType, cfg.MultiValue}]
	if !ok {
		return nil, status.Unimplementedf("attribute %s: no merger for %s (multi=%t)", cfg.Name, cfg.FieldType, cfg.MultiValue)
	}
	return f(opts), nil
}
