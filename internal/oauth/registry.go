package oauth

import "sort"

// Registry maps integration slugs to Provider implementations. It is
// populated once at startup; request paths only read from it.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry under the given integration slug.
func (r *Registry) Register(slug string, p Provider) {
	r.providers[slug] = p
}

// Get returns the provider registered under the given slug.
// Returns false if the slug is not registered.
func (r *Registry) Get(slug string) (Provider, bool) {
	p, ok := r.providers[slug]
	return p, ok
}

// Has reports whether a provider with the given slug is registered.
func (r *Registry) Has(slug string) bool {
	_, ok := r.providers[slug]
	return ok
}

// Slugs returns a sorted list of all registered integration slugs.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.providers))
	for slug := range r.providers {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
