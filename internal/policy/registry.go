package policy

import (
	"fmt"
	"sort"
)

// Registry holds the look-alike pattern families by ID.
type Registry struct {
	families map[string]Family
}

// NewRegistry creates a registry with the background and page families.
func NewRegistry() *Registry {
	r := &Registry{
		families: make(map[string]Family),
	}

	r.Register(NewBackgroundFamily())
	r.Register(NewPageFamily())

	return r
}

// NewRegistryWithFamilies creates a registry with custom families (for testing).
func NewRegistryWithFamilies(families ...Family) *Registry {
	r := &Registry{
		families: make(map[string]Family),
	}
	for _, f := range families {
		r.Register(f)
	}
	return r
}

// Register adds or replaces a family.
func (r *Registry) Register(f Family) {
	r.families[f.ID] = f
}

// Get returns a family by ID.
func (r *Registry) Get(id string) (Family, error) {
	f, ok := r.families[id]
	if !ok {
		return Family{}, fmt.Errorf("pattern family not found: %s", id)
	}
	return f, nil
}

// MustGet returns a family by ID and panics when it is missing.
func (r *Registry) MustGet(id string) Family {
	f, err := r.Get(id)
	if err != nil {
		panic(err)
	}
	return f
}

// List returns all family IDs in sorted order.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.families))
	for id := range r.families {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
