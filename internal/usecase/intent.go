// Package usecase contains application business logic.
package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/policy"
	"github.com/eliteGoblin/focusd/focustab/internal/record"
)

// IntentPublisher recomputes the BlockingIntent in full and persists it.
// It is the only writer of the focus_blocking record.
type IntentPublisher struct {
	store   domain.RecordStore
	catalog *policy.Registry
	clock   domain.Clock
	logger  *zap.Logger
}

// NewIntentPublisher creates a publisher resolving presets through catalog.
func NewIntentPublisher(store domain.RecordStore, catalog *policy.Registry, clock domain.Clock, logger *zap.Logger) *IntentPublisher {
	return &IntentPublisher{
		store:   store,
		catalog: catalog,
		clock:   clock,
		logger:  logger,
	}
}

// ResolveDomains maps a selection to its sorted, deduplicated domain set.
func (p *IntentPublisher) ResolveDomains(sel domain.SiteSelection) []string {
	domains := p.catalog.Resolve(sel.PresetSelected)
	for _, c := range sel.CustomSites {
		domains = append(domains, c.Domain)
	}
	return domain.UniqueSorted(domains)
}

// Compute builds the intent for the given running flag and selection.
func (p *IntentPublisher) Compute(active bool, sel domain.SiteSelection) domain.BlockingIntent {
	intent := domain.BlockingIntent{
		Active:    active,
		Domains:   []string{},
		UpdatedAt: p.clock.Now().UTC(),
	}
	if active {
		intent.Domains = p.ResolveDomains(sel)
	}
	return intent
}

// Publish reads the current selection, computes the intent and writes it.
func (p *IntentPublisher) Publish(ctx context.Context, active bool) (domain.BlockingIntent, error) {
	sel := record.LoadSiteSelection(ctx, p.store, p.logger)
	return p.PublishSelection(ctx, active, sel)
}

// PublishSelection writes the intent for an already-loaded selection.
func (p *IntentPublisher) PublishSelection(ctx context.Context, active bool, sel domain.SiteSelection) (domain.BlockingIntent, error) {
	intent := p.Compute(active, sel)
	if err := record.Save(ctx, p.store, domain.KeyBlockingIntent, intent); err != nil {
		return intent, err
	}
	p.logger.Debug("blocking intent published",
		zap.Bool("active", intent.Active),
		zap.Int("domains", len(intent.Domains)))
	return intent, nil
}
