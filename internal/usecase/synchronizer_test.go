package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

func active(domains ...string) domain.BlockingIntent {
	return domain.BlockingIntent{Active: true, Domains: domains}
}

func inactive() domain.BlockingIntent {
	return domain.BlockingIntent{Domains: []string{}}
}

func startedSync(t *testing.T, engine *mockEngine) *Synchronizer {
	t.Helper()
	s := NewSynchronizer(engine, SyncConfig{}, zap.NewNop())
	require.NoError(t, s.OnStartup(context.Background()))
	return s
}

func TestSynchronizer_RejectsIntentBeforeStartup(t *testing.T) {
	engine := newMockEngine()
	s := NewSynchronizer(engine, SyncConfig{}, zap.NewNop())

	err := s.OnIntentChanged(context.Background(), active("x.com"))
	assert.True(t, errors.Is(err, domain.ErrNotStarted))
	assert.Empty(t, engine.installedIDs(t))
	assert.False(t, s.Started())
}

func TestSynchronizer_InstallsOneRulePerDomain(t *testing.T) {
	engine := newMockEngine()
	s := startedSync(t, engine)

	require.NoError(t, s.OnIntentChanged(context.Background(), active("y.com", "x.com")))

	assert.Equal(t, []int{1000, 1001}, engine.installedIDs(t))
	assert.Equal(t, []int{1000, 1001}, s.InstalledRuleIDs())
	assert.Equal(t, SyncPopulated, s.State())

	rules, err := engine.ListInstalledRules(context.Background())
	require.NoError(t, err)
	first := rules[0]
	assert.Equal(t, "*://{x.com,*.x.com}/**", first.Condition.URLFilter)
	assert.Equal(t, []string{"x.com"}, first.Condition.RequestDomains)
	assert.Equal(t, []domain.ResourceType{domain.ResourceMainFrame}, first.Condition.ResourceTypes)
	assert.Equal(t, domain.ActionRedirect, first.Action.Type)
	assert.Equal(t, DefaultRedirectPath, first.Action.RedirectPath)
	assert.Equal(t, DefaultRulePriority, first.Priority)
}

func TestSynchronizer_RulesMatchDomainAndSubdomains(t *testing.T) {
	engine := newMockEngine()
	s := startedSync(t, engine)
	require.NoError(t, s.OnIntentChanged(context.Background(), active("x.com")))

	tests := []struct {
		url  string
		rt   domain.ResourceType
		want bool
	}{
		{"https://x.com/home", domain.ResourceMainFrame, true},
		{"https://www.x.com/", domain.ResourceMainFrame, true},
		{"http://a.x.com/path?q=1", domain.ResourceMainFrame, true},
		{"https://notx.com/", domain.ResourceMainFrame, false},
		{"https://x.com/img.png", domain.ResourceType("image"), false},
	}
	for _, tt := range tests {
		_, matched := engine.Evaluate(tt.url, tt.rt)
		assert.Equal(t, tt.want, matched, tt.url)
	}
}

func TestSynchronizer_RapidIntentsEndEmpty(t *testing.T) {
	ctx := context.Background()
	intents := []domain.BlockingIntent{
		active("x.com"),
		active("x.com", "y.com"),
		inactive(),
	}

	orders := [][]int{{0, 1, 2}, {1, 0, 2}, {0, 2, 1, 2}}
	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			engine := newMockEngine()
			s := startedSync(t, engine)
			for _, i := range order {
				require.NoError(t, s.OnIntentChanged(ctx, intents[i]))
			}
			assert.Empty(t, engine.installedIDs(t))
			assert.Empty(t, s.InstalledRuleIDs())
			assert.Equal(t, SyncEmpty, s.State())
		})
	}
}

func TestSynchronizer_ActiveWithoutDomainsIsEmpty(t *testing.T) {
	engine := newMockEngine()
	s := startedSync(t, engine)
	require.NoError(t, s.OnIntentChanged(context.Background(), active("x.com")))

	require.NoError(t, s.OnIntentChanged(context.Background(), active()))
	assert.Equal(t, SyncEmpty, s.State())
	assert.Empty(t, engine.installedIDs(t))
}

func TestSynchronizer_InactiveIntentIgnoresStaleDomains(t *testing.T) {
	engine := newMockEngine()
	s := startedSync(t, engine)

	require.NoError(t, s.OnIntentChanged(context.Background(), domain.BlockingIntent{Domains: []string{"x.com"}}))
	assert.Empty(t, engine.installedIDs(t))
}

func TestSynchronizer_StartupClearsLeakedRules(t *testing.T) {
	ctx := context.Background()
	engine := newMockEngine()
	first := startedSync(t, engine)
	require.NoError(t, first.OnIntentChanged(ctx, active("x.com", "y.com")))
	require.Len(t, engine.installedIDs(t), 2)

	// The background process restarts; the new instance tracks nothing.
	restarted := NewSynchronizer(engine, SyncConfig{}, zap.NewNop())
	require.ErrorIs(t, restarted.OnIntentChanged(ctx, active("z.com")), domain.ErrNotStarted)
	assert.Len(t, engine.installedIDs(t), 2)

	require.NoError(t, restarted.OnStartup(ctx))
	assert.Empty(t, engine.installedIDs(t))
	assert.Equal(t, SyncEmpty, restarted.State())

	require.NoError(t, restarted.OnIntentChanged(ctx, active("z.com")))
	assert.Equal(t, []int{1000}, engine.installedIDs(t))
}

func TestSynchronizer_InstallClearsForeignRules(t *testing.T) {
	engine := newMockEngine(domain.Rule{ID: 7}, domain.Rule{ID: 1500})
	s := NewSynchronizer(engine, SyncConfig{}, zap.NewNop())

	require.NoError(t, s.OnInstall(context.Background()))
	assert.Empty(t, engine.installedIDs(t))
}

func TestSynchronizer_ClearOnlyTouchesOwnRules(t *testing.T) {
	ctx := context.Background()
	engine := newMockEngine()
	s := startedSync(t, engine)

	// Another feature installs a rule after the sweep.
	require.NoError(t, engine.MemoryEngine.InstallRules(ctx, []domain.Rule{{ID: 5}}))

	require.NoError(t, s.OnIntentChanged(ctx, active("x.com")))
	require.NoError(t, s.OnIntentChanged(ctx, inactive()))
	assert.Equal(t, []int{5}, engine.installedIDs(t))
	assert.Equal(t, []int{1000}, engine.removed[len(engine.removed)-1])
}

func TestSynchronizer_ClearFailureKeepsTracking(t *testing.T) {
	ctx := context.Background()
	engine := newMockEngine()
	s := startedSync(t, engine)
	require.NoError(t, s.OnIntentChanged(ctx, active("x.com")))

	engine.removeErr = errEngine
	err := s.OnIntentChanged(ctx, inactive())
	assert.ErrorIs(t, err, errEngine)
	assert.Equal(t, []int{1000}, s.InstalledRuleIDs())
	assert.Equal(t, []int{1000}, engine.installedIDs(t))

	// The next intent is the recovery path.
	engine.removeErr = nil
	require.NoError(t, s.OnIntentChanged(ctx, inactive()))
	assert.Empty(t, engine.installedIDs(t))
}

func TestSynchronizer_InstallFailureTracksAttempted(t *testing.T) {
	ctx := context.Background()
	engine := newMockEngine()
	s := startedSync(t, engine)

	engine.installErr = errEngine
	err := s.OnIntentChanged(ctx, active("x.com", "y.com"))
	assert.ErrorIs(t, err, errEngine)
	assert.Equal(t, SyncEmpty, s.State())
	assert.Equal(t, []int{1000, 1001}, s.InstalledRuleIDs())

	engine.installErr = nil
	require.NoError(t, s.OnIntentChanged(ctx, active("x.com")))
	assert.Equal(t, []int{1000}, engine.installedIDs(t))
	assert.Equal(t, SyncPopulated, s.State())
}

func TestSynchronizer_SweepFailureStillStarts(t *testing.T) {
	ctx := context.Background()
	engine := newMockEngine(domain.Rule{ID: 1003}, domain.Rule{ID: 9})
	engine.removeErr = errEngine
	s := NewSynchronizer(engine, SyncConfig{}, zap.NewNop())

	assert.ErrorIs(t, s.OnStartup(ctx), errEngine)
	assert.True(t, s.Started())
	assert.Equal(t, []int{1003}, s.InstalledRuleIDs())

	engine.removeErr = nil
	require.NoError(t, s.OnIntentChanged(ctx, active("x.com")))
	assert.Equal(t, []int{9, 1000}, engine.installedIDs(t))
}

func TestSynchronizer_ListFailureStillStarts(t *testing.T) {
	engine := newMockEngine()
	engine.listErr = errEngine
	s := NewSynchronizer(engine, SyncConfig{}, zap.NewNop())

	assert.ErrorIs(t, s.OnStartup(context.Background()), errEngine)
	assert.True(t, s.Started())
	assert.NoError(t, s.OnIntentChanged(context.Background(), active("x.com")))
}

func TestSynchronizer_OverflowDropped(t *testing.T) {
	engine := newMockEngine()
	s := NewSynchronizer(engine, SyncConfig{RuleIDBase: 50, RuleIDLimit: 2}, zap.NewNop())
	require.NoError(t, s.OnStartup(context.Background()))

	require.NoError(t, s.OnIntentChanged(context.Background(), active("c.com", "a.com", "b.com")))
	assert.Equal(t, []int{50, 51}, engine.installedIDs(t))

	got, ok := engine.Evaluate("https://c.com/", domain.ResourceMainFrame)
	assert.False(t, ok, "overflow domain should not be blocked: %+v", got)
}

func TestSynchronizer_NormalizesIntentDomains(t *testing.T) {
	engine := newMockEngine()
	s := startedSync(t, engine)

	require.NoError(t, s.OnIntentChanged(context.Background(), active("WWW.X.com", "x.com", "")))
	assert.Equal(t, []int{1000}, engine.installedIDs(t))
}

func TestSynchronizer_InvalidDomainsDoNotBreakBlocking(t *testing.T) {
	engine := newMockEngine()
	s := startedSync(t, engine)
	ctx := context.Background()

	require.NoError(t, s.OnIntentChanged(ctx, active("ex[ample.com", "com,evil.org", "a.com\n6.6.6.6 bank.com", "x.com")))
	assert.Equal(t, []int{1000}, engine.installedIDs(t))
	assert.Equal(t, SyncPopulated, s.State())

	_, ok := engine.Evaluate("https://x.com/", domain.ResourceMainFrame)
	assert.True(t, ok)
	for _, url := range []string{"https://google.com/", "https://evil.org/", "https://bank.com/"} {
		_, ok := engine.Evaluate(url, domain.ResourceMainFrame)
		assert.False(t, ok, url)
	}
}

func TestSynchronizer_OnlyInvalidDomainsIsEmpty(t *testing.T) {
	engine := newMockEngine()
	s := startedSync(t, engine)

	require.NoError(t, s.OnIntentChanged(context.Background(), active("bad domain.com", "{x")))
	assert.Empty(t, engine.installedIDs(t))
	assert.Equal(t, SyncEmpty, s.State())
}

func TestSynchronizer_BuildRulesSkipsInvalid(t *testing.T) {
	s := NewSynchronizer(newMockEngine(), SyncConfig{RuleIDLimit: 2}, zap.NewNop())

	rules := s.BuildRules([]string{"a.com", "b c.com", "b.com", "c.com"})
	require.Len(t, rules, 2)
	assert.Equal(t, 1000, rules[0].ID)
	assert.Equal(t, []string{"a.com"}, rules[0].Condition.RequestDomains)
	assert.Equal(t, 1001, rules[1].ID)
	assert.Equal(t, []string{"b.com"}, rules[1].Condition.RequestDomains)
}

func TestDefaultSyncConfig(t *testing.T) {
	cfg := DefaultSyncConfig()
	assert.Equal(t, 1000, cfg.RuleIDBase)
	assert.Equal(t, 1000, cfg.RuleIDLimit)
	assert.Equal(t, "/blocked.html", cfg.RedirectPath)
}
