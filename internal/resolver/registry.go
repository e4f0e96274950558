package resolver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"erpnext-bridge/internal/metadata"
)

// Registry maps DocType names to resolvers. DocTypes without an entry use
// the fallback.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
	fallback  Resolver
}

func NewRegistry(fallback Resolver) *Registry {
	return &Registry{
		resolvers: make(map[string]Resolver),
		fallback:  fallback,
	}
}

// NewDefaultRegistry builds a registry with the generic resolver as
// fallback and every built in enrichment registered.
func NewDefaultRegistry(schemas SchemaSource, docs DocumentLister) (*Registry, error) {
	defs, err := BuiltinDefinitions()
	if err != nil {
		return nil, err
	}
	reg := NewRegistry(NewGeneric(schemas))
	for _, def := range defs {
		e, err := NewEnrichment(def, docs)
		if err != nil {
			return nil, fmt.Errorf("load enrichment: %w", err)
		}
		reg.Register(e.DocType(), e)
	}
	return reg, nil
}

func (r *Registry) Register(doctype string, res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[doctype] = res
}

// Lookup returns the resolver for doctype, or the fallback.
func (r *Registry) Lookup(doctype string) Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if res, ok := r.resolvers[doctype]; ok {
		return res
	}
	return r.fallback
}

// DocTypes returns the DocTypes with a dedicated resolver.
func (r *Registry) DocTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.resolvers))
	for name := range r.resolvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Resolve(ctx context.Context, doctype string, input map[string]any) ([]metadata.FieldDescriptor, error) {
	return r.Lookup(doctype).Resolve(ctx, doctype, input)
}
