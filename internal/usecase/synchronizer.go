package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/record"
)

// Rule allocation defaults.
const (
	DefaultRuleIDBase   = 1000
	DefaultRuleIDLimit  = 1000
	DefaultRulePriority = 1
	DefaultRedirectPath = "/blocked.html"
)

// SyncState is the synchronizer's view of the engine.
type SyncState string

const (
	SyncEmpty     SyncState = "EMPTY"
	SyncPopulated SyncState = "POPULATED"
)

// SyncConfig controls rule allocation.
type SyncConfig struct {
	// Rule IDs are allocated from [RuleIDBase, RuleIDBase+RuleIDLimit).
	RuleIDBase   int
	RuleIDLimit  int
	Priority     int
	RedirectPath string
}

// DefaultSyncConfig returns the default rule allocation.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		RuleIDBase:   DefaultRuleIDBase,
		RuleIDLimit:  DefaultRuleIDLimit,
		Priority:     DefaultRulePriority,
		RedirectPath: DefaultRedirectPath,
	}
}

// Synchronizer is the sole writer of the engine's blocking rules.
// Every intent is applied as a full clear-then-add scoped to the rule IDs it
// installed itself, so coalesced or reordered intents converge on the last one.
type Synchronizer struct {
	engine domain.RuleEngine
	cfg    SyncConfig
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	tracked []int
	state   SyncState
}

// NewSynchronizer creates a synchronizer. Zero config fields take defaults.
func NewSynchronizer(engine domain.RuleEngine, cfg SyncConfig, logger *zap.Logger) *Synchronizer {
	def := DefaultSyncConfig()
	if cfg.RuleIDBase <= 0 {
		cfg.RuleIDBase = def.RuleIDBase
	}
	if cfg.RuleIDLimit <= 0 {
		cfg.RuleIDLimit = def.RuleIDLimit
	}
	if cfg.Priority <= 0 {
		cfg.Priority = def.Priority
	}
	if cfg.RedirectPath == "" {
		cfg.RedirectPath = def.RedirectPath
	}
	return &Synchronizer{
		engine: engine,
		cfg:    cfg,
		logger: logger,
		state:  SyncEmpty,
	}
}

// OnStartup clears every rule the engine reports, then starts honoring intents.
func (s *Synchronizer) OnStartup(ctx context.Context) error {
	return s.sweep(ctx, "startup")
}

// OnInstall is OnStartup for a fresh install or version change.
func (s *Synchronizer) OnInstall(ctx context.Context) error {
	return s.sweep(ctx, "install")
}

// OnIntentChanged replaces the installed rules with those for intent.
// Engine failures abandon the cycle and are returned for logging; they are not retried.
func (s *Synchronizer) OnIntentChanged(ctx context.Context, intent domain.BlockingIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.logger.Warn("intent ignored before startup sweep",
			zap.Bool("active", intent.Active))
		return domain.ErrNotStarted
	}

	intent = record.NormalizeIntent(intent)

	if len(s.tracked) > 0 {
		if err := s.engine.RemoveRules(ctx, s.tracked); err != nil {
			s.logger.Error("failed to clear blocking rules",
				zap.Ints("rule_ids", s.tracked),
				zap.Error(err))
			return fmt.Errorf("failed to clear rules: %w", err)
		}
	}
	s.tracked = nil
	s.state = SyncEmpty

	if !intent.Active || len(intent.Domains) == 0 {
		s.logger.Info("blocking rules cleared", zap.Bool("active", intent.Active))
		return nil
	}

	rules := s.BuildRules(intent.Domains)
	if len(rules) == 0 {
		s.logger.Info("blocking rules cleared, no valid domains")
		return nil
	}
	ids := make([]int, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	// Tracked before the call so a partial install is removed by the next clear.
	s.tracked = ids

	if err := s.engine.InstallRules(ctx, rules); err != nil {
		s.logger.Error("failed to install blocking rules",
			zap.Int("rules", len(rules)),
			zap.Error(err))
		return fmt.Errorf("failed to install rules: %w", err)
	}
	s.state = SyncPopulated

	installed := make([]string, len(rules))
	for i, r := range rules {
		installed[i] = r.Condition.RequestDomains[0]
	}
	s.logger.Info("blocking rules installed",
		zap.Int("rules", len(rules)),
		zap.Strings("domains", installed))

	return nil
}

// BuildRules converts sorted domains into redirect rules with IDs from the
// reserved range. Invalid hostnames are skipped and domains beyond the range
// are dropped.
func (s *Synchronizer) BuildRules(domains []string) []domain.Rule {
	rules := make([]domain.Rule, 0, min(len(domains), s.cfg.RuleIDLimit))
	for _, d := range domains {
		if !domain.ValidDomain(d) {
			s.logger.Warn("skipping invalid domain", zap.String("domain", d))
			continue
		}
		if len(rules) == s.cfg.RuleIDLimit {
			s.logger.Warn("too many domains for reserved rule range, dropping overflow",
				zap.Int("domains", len(domains)),
				zap.Int("limit", s.cfg.RuleIDLimit))
			break
		}
		rules = append(rules, domain.Rule{
			ID:       s.cfg.RuleIDBase + len(rules),
			Priority: s.cfg.Priority,
			Condition: domain.RuleCondition{
				URLFilter:      domain.DomainURLFilter(d),
				RequestDomains: []string{d},
				ResourceTypes:  []domain.ResourceType{domain.ResourceMainFrame},
			},
			Action: domain.RuleAction{
				Type:         domain.ActionRedirect,
				RedirectPath: s.cfg.RedirectPath,
			},
		})
	}
	return rules
}

// State returns EMPTY or POPULATED.
func (s *Synchronizer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Started reports whether the startup sweep has run.
func (s *Synchronizer) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// InstalledRuleIDs returns the IDs the synchronizer believes it owns.
func (s *Synchronizer) InstalledRuleIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, len(s.tracked))
	copy(ids, s.tracked)
	return ids
}

// sweep removes everything the engine reports. It counts as run even when
// the engine fails; IDs from the reserved range that could not be removed
// are tracked so the next intent clears them.
func (s *Synchronizer) sweep(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = true
	s.tracked = nil
	s.state = SyncEmpty

	installed, err := s.engine.ListInstalledRules(ctx)
	if err != nil {
		s.logger.Error("failed to list installed rules",
			zap.String("reason", reason),
			zap.Error(err))
		return fmt.Errorf("failed to list rules: %w", err)
	}
	if len(installed) == 0 {
		s.logger.Info("rule sweep found nothing to clear", zap.String("reason", reason))
		return nil
	}

	ids := make([]int, 0, len(installed))
	for _, r := range installed {
		ids = append(ids, r.ID)
	}
	sort.Ints(ids)

	if err := s.engine.RemoveRules(ctx, ids); err != nil {
		for _, id := range ids {
			if s.owns(id) {
				s.tracked = append(s.tracked, id)
			}
		}
		s.logger.Error("failed to clear rules on sweep",
			zap.String("reason", reason),
			zap.Ints("rule_ids", ids),
			zap.Error(err))
		return fmt.Errorf("failed to remove rules: %w", err)
	}

	s.logger.Info("stale rules cleared",
		zap.String("reason", reason),
		zap.Int("rules", len(ids)))

	return nil
}

func (s *Synchronizer) owns(id int) bool {
	return id >= s.cfg.RuleIDBase && id < s.cfg.RuleIDBase+s.cfg.RuleIDLimit
}
