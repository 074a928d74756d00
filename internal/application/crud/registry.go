package crud

import (
	"github.com/lllypuk/claimservice/internal/domain/entity"
)

// Registry holds one Service per schema of a catalog.
type Registry struct {
	services map[string]*Service
	order    []*Service
}

// NewRegistry builds the components of every schema explicitly: one
// QueryComposer and one Reconciler per schema, wired into a Service together
// with the composers of its relation targets.
func NewRegistry(catalog *entity.Catalog, store Store, opts ...Option) *Registry {
	composers := make(map[string]*QueryComposer)
	for _, schema := range catalog.Schemas() {
		composers[schema.Name] = NewQueryComposer(schema, catalog, store)
	}

	r := &Registry{services: make(map[string]*Service)}
	for _, schema := range catalog.Schemas() {
		serviceOpts := append([]Option{}, opts...)
		for _, rel := range schema.Relations {
			serviceOpts = append(serviceOpts, WithRelated(rel.Name, composers[rel.Target]))
		}

		svc := NewService(composers[schema.Name], NewReconciler(schema, catalog, store), store, serviceOpts...)
		r.services[schema.Name] = svc
		r.order = append(r.order, svc)
	}
	return r
}

// Service returns the service for an entity name.
func (r *Registry) Service(name string) (*Service, bool) {
	svc, ok := r.services[name]
	return svc, ok
}

// Services returns all services in catalog order.
func (r *Registry) Services() []*Service {
	return append([]*Service(nil), r.order...)
}
