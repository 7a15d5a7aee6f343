package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/infra"
	"github.com/eliteGoblin/focusd/focustab/internal/policy"
	"github.com/eliteGoblin/focusd/focustab/internal/record"
)

var errEngine = errors.New("engine unavailable")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockTracker counts completed sessions.
type mockTracker struct {
	calls int
	err   error
}

func (m *mockTracker) NotifySessionCompleted(ctx context.Context) error {
	m.calls++
	return m.err
}

// mockEngine wraps MemoryEngine with failure injection and call recording.
type mockEngine struct {
	*infra.MemoryEngine

	listErr    error
	installErr error
	removeErr  error
	removed    [][]int
}

func newMockEngine(rules ...domain.Rule) *mockEngine {
	return &mockEngine{MemoryEngine: infra.NewMemoryEngine(rules...)}
}

func (m *mockEngine) ListInstalledRules(ctx context.Context) ([]domain.Rule, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.MemoryEngine.ListInstalledRules(ctx)
}

func (m *mockEngine) InstallRules(ctx context.Context, rules []domain.Rule) error {
	if m.installErr != nil {
		return m.installErr
	}
	return m.MemoryEngine.InstallRules(ctx, rules)
}

func (m *mockEngine) RemoveRules(ctx context.Context, ids []int) error {
	m.removed = append(m.removed, append([]int(nil), ids...))
	if m.removeErr != nil {
		return m.removeErr
	}
	return m.MemoryEngine.RemoveRules(ctx, ids)
}

func (m *mockEngine) installedIDs(t *testing.T) []int {
	t.Helper()
	rules, err := m.MemoryEngine.ListInstalledRules(context.Background())
	require.NoError(t, err)
	ids := make([]int, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	return ids
}

// failingStore fails every write.
type failingStore struct {
	*infra.MemoryStore
}

func (s failingStore) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("disk full")
}

// testCatalog is a small fixed catalog.
func testCatalog() *policy.Registry {
	return policy.NewRegistryWithPolicies(
		policy.NewStaticPolicy("reddit", "Reddit", "social", "reddit.com", "redd.it"),
		policy.NewStaticPolicy("youtube", "YouTube", "video", "youtube.com", "youtu.be"),
	)
}

type fixture struct {
	store     *infra.MemoryStore
	clock     *fakeClock
	tracker   *mockTracker
	publisher *IntentPublisher
	timer     *FocusTimer
	sites     *SiteManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := infra.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	clock := newFakeClock()
	tracker := &mockTracker{}
	logger := zap.NewNop()
	publisher := NewIntentPublisher(store, testCatalog(), clock, logger)

	return &fixture{
		store:     store,
		clock:     clock,
		tracker:   tracker,
		publisher: publisher,
		timer:     NewFocusTimer(store, publisher, tracker, clock, 1500*time.Second, logger),
		sites:     NewSiteManager(store, publisher, testCatalog(), logger),
	}
}

// newTimer creates another timer on the same store, as a relaunched context would.
func (f *fixture) newTimer() *FocusTimer {
	return NewFocusTimer(f.store, f.publisher, f.tracker, f.clock, 1500*time.Second, zap.NewNop())
}

func (f *fixture) intent(t *testing.T) domain.BlockingIntent {
	t.Helper()
	data, err := f.store.Get(context.Background(), domain.KeyBlockingIntent)
	require.NoError(t, err)
	intent, err := record.DecodeIntent(data)
	require.NoError(t, err)
	return intent
}

func (f *fixture) timerState(t *testing.T) domain.TimerState {
	t.Helper()
	return record.LoadTimerState(context.Background(), f.store, zap.NewNop())
}
