package infra

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

// MemoryEngine implements domain.RuleEngine in process memory and evaluates
// URL filters itself. Rules do not survive a process restart.
type MemoryEngine struct {
	mu    sync.RWMutex
	rules map[int]domain.Rule
}

// NewMemoryEngine creates an engine with the given pre-installed rules.
func NewMemoryEngine(rules ...domain.Rule) *MemoryEngine {
	e := &MemoryEngine{rules: make(map[int]domain.Rule)}
	for _, r := range rules {
		e.rules[r.ID] = r
	}
	return e
}

// ListInstalledRules returns all rules ordered by ID.
func (e *MemoryEngine) ListInstalledRules(ctx context.Context) ([]domain.Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]domain.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// InstallRules adds rules. Nothing is installed if any ID is taken or any filter is invalid.
func (e *MemoryEngine) InstallRules(ctx context.Context, rules []domain.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[int]bool, len(rules))
	for _, r := range rules {
		if _, exists := e.rules[r.ID]; exists || seen[r.ID] {
			return fmt.Errorf("rule %d already installed", r.ID)
		}
		if r.Condition.URLFilter != "" {
			if _, err := CompileURLFilter(r.Condition.URLFilter); err != nil {
				return err
			}
		}
		seen[r.ID] = true
	}
	for _, r := range rules {
		e.rules[r.ID] = r
	}
	return nil
}

// RemoveRules removes rules by ID; unknown IDs are ignored.
func (e *MemoryEngine) RemoveRules(ctx context.Context, ids []int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range ids {
		delete(e.rules, id)
	}
	return nil
}

// Evaluate returns the rule that would redirect rawURL, if any.
func (e *MemoryEngine) Evaluate(rawURL string, rt domain.ResourceType) (domain.Rule, bool) {
	rules, _ := e.ListInstalledRules(context.Background())
	return MatchRules(rules, rawURL, rt)
}

// Ensure MemoryEngine implements domain.RuleEngine.
var _ domain.RuleEngine = (*MemoryEngine)(nil)
