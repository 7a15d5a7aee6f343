// Package policy implements the Strategy pattern for site-blocking presets.
// Each preset (YouTube, Reddit, ...) defines the domains it blocks.
package policy

import (
	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

// SitePolicy defines the strategy interface for a blockable preset.
type SitePolicy interface {
	// ID returns unique identifier (e.g., "youtube", "reddit").
	ID() domain.PresetID

	// Name returns human-readable name for display.
	Name() string

	// Category groups presets in listings ("social", "video", ...).
	Category() string

	// Domains returns the normalized domains to block.
	// Subdomains are covered by the generated rules.
	Domains() []string
}

// StaticPolicy is a SitePolicy with fixed values.
type StaticPolicy struct {
	id       domain.PresetID
	name     string
	category string
	domains  []string
}

// NewStaticPolicy creates a preset with a fixed domain list.
func NewStaticPolicy(id domain.PresetID, name, category string, domains ...string) *StaticPolicy {
	return &StaticPolicy{id: id, name: name, category: category, domains: domains}
}

func (p *StaticPolicy) ID() domain.PresetID {
	return p.id
}

func (p *StaticPolicy) Name() string {
	return p.name
}

func (p *StaticPolicy) Category() string {
	return p.category
}

func (p *StaticPolicy) Domains() []string {
	out := make([]string, len(p.domains))
	copy(out, p.domains)
	return out
}

// Ensure StaticPolicy implements SitePolicy.
var _ SitePolicy = (*StaticPolicy)(nil)
