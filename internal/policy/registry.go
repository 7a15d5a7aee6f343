package policy

import (
	"fmt"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

// Registry holds the preset catalog, in registration order.
type Registry struct {
	policies map[domain.PresetID]SitePolicy
	order    []domain.PresetID
}

// NewRegistry creates a registry with the default catalog.
func NewRegistry() *Registry {
	return NewRegistryWithPolicies(DefaultPolicies()...)
}

// NewRegistryWithPolicies creates a registry with custom policies (for testing).
func NewRegistryWithPolicies(policies ...SitePolicy) *Registry {
	r := &Registry{
		policies: make(map[domain.PresetID]SitePolicy),
	}
	for _, p := range policies {
		r.Register(p)
	}
	return r
}

// Register adds a policy to the registry. Re-registering an ID replaces it.
func (r *Registry) Register(p SitePolicy) {
	if _, exists := r.policies[p.ID()]; !exists {
		r.order = append(r.order, p.ID())
	}
	r.policies[p.ID()] = p
}

// Get returns a policy by ID.
func (r *Registry) Get(id domain.PresetID) (SitePolicy, bool) {
	p, ok := r.policies[id]
	return p, ok
}

// MustGet returns a policy by ID or ErrUnknownPreset.
func (r *Registry) MustGet(id domain.PresetID) (SitePolicy, error) {
	p, ok := r.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPreset, id)
	}
	return p, nil
}

// GetAll returns all registered policies in registration order.
func (r *Registry) GetAll() []SitePolicy {
	result := make([]SitePolicy, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.policies[id])
	}
	return result
}

// List returns all preset IDs.
func (r *Registry) List() []domain.PresetID {
	ids := make([]domain.PresetID, len(r.order))
	copy(ids, r.order)
	return ids
}

// Resolve maps selected preset IDs to their domains. Unknown IDs are skipped.
func (r *Registry) Resolve(ids []domain.PresetID) []string {
	var domains []string
	for _, id := range ids {
		if p, ok := r.policies[id]; ok {
			domains = append(domains, p.Domains()...)
		}
	}
	return domains
}
