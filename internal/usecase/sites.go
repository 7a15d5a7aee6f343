package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/policy"
	"github.com/eliteGoblin/focusd/focustab/internal/record"
)

// SiteManager edits the set of domains eligible for blocking.
// Every mutation persists the selection and, while a session is running,
// re-publishes the blocking intent.
type SiteManager struct {
	store     domain.RecordStore
	publisher *IntentPublisher
	catalog   *policy.Registry
	logger    *zap.Logger
	newID     func() string
}

// NewSiteManager creates a site manager.
func NewSiteManager(store domain.RecordStore, publisher *IntentPublisher, catalog *policy.Registry, logger *zap.Logger) *SiteManager {
	return &SiteManager{
		store:     store,
		publisher: publisher,
		catalog:   catalog,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Selection returns the persisted selection, or an empty one.
func (m *SiteManager) Selection(ctx context.Context) domain.SiteSelection {
	return record.LoadSiteSelection(ctx, m.store, m.logger)
}

// ResolvedDomains returns the sorted domain set the selection maps to.
func (m *SiteManager) ResolvedDomains(ctx context.Context) []string {
	return m.publisher.ResolveDomains(m.Selection(ctx))
}

// Catalog returns the preset catalog.
func (m *SiteManager) Catalog() *policy.Registry {
	return m.catalog
}

// Toggle flips membership of a preset. Returns whether it is now selected.
func (m *SiteManager) Toggle(ctx context.Context, id domain.PresetID) (bool, error) {
	if _, err := m.catalog.MustGet(id); err != nil {
		return false, err
	}

	sel := m.Selection(ctx)
	selected := !sel.HasPreset(id)
	if selected {
		sel.PresetSelected = append(sel.PresetSelected, id)
		sort.Slice(sel.PresetSelected, func(i, j int) bool {
			return sel.PresetSelected[i] < sel.PresetSelected[j]
		})
	} else {
		kept := sel.PresetSelected[:0]
		for _, p := range sel.PresetSelected {
			if p != id {
				kept = append(kept, p)
			}
		}
		sel.PresetSelected = kept
	}

	m.logger.Info("preset toggled",
		zap.String("preset", string(id)),
		zap.Bool("selected", selected))

	return selected, m.save(ctx, sel)
}

// AddCustom appends a user domain. Input that does not normalize to a valid
// hostname and duplicates are ignored and reported as not added.
func (m *SiteManager) AddCustom(ctx context.Context, raw string) (domain.CustomSite, bool, error) {
	d := domain.NormalizeDomain(raw)
	if d == "" {
		return domain.CustomSite{}, false, nil
	}

	sel := m.Selection(ctx)
	if sel.HasCustomDomain(d) {
		return domain.CustomSite{}, false, nil
	}

	site := domain.CustomSite{ID: m.newID(), Domain: d}
	sel.CustomSites = append(sel.CustomSites, site)

	m.logger.Info("custom site added",
		zap.String("id", site.ID),
		zap.String("domain", d))

	return site, true, m.save(ctx, sel)
}

// RemoveCustom deletes a custom site by ID. Unknown IDs are ignored.
func (m *SiteManager) RemoveCustom(ctx context.Context, id string) (bool, error) {
	sel := m.Selection(ctx)

	kept := make([]domain.CustomSite, 0, len(sel.CustomSites))
	removed := false
	for _, c := range sel.CustomSites {
		if c.ID == id {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	if !removed {
		return false, nil
	}
	sel.CustomSites = kept

	m.logger.Info("custom site removed", zap.String("id", id))

	return true, m.save(ctx, sel)
}

func (m *SiteManager) save(ctx context.Context, sel domain.SiteSelection) error {
	if sel.PresetSelected == nil {
		sel.PresetSelected = []domain.PresetID{}
	}
	if sel.CustomSites == nil {
		sel.CustomSites = []domain.CustomSite{}
	}
	if err := record.Save(ctx, m.store, domain.KeySiteSelection, sel); err != nil {
		return fmt.Errorf("failed to save site selection: %w", err)
	}

	state := record.LoadTimerState(ctx, m.store, m.logger)
	if !state.IsRunning {
		return nil
	}
	if _, err := m.publisher.PublishSelection(ctx, true, sel); err != nil {
		return fmt.Errorf("failed to republish blocking intent: %w", err)
	}
	return nil
}
