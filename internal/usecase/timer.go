package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/record"
)

// TimerView is the display state of the countdown.
type TimerView struct {
	RemainingSeconds int
	DurationSeconds  int
	IsRunning        bool
	IsPaused         bool
}

// FocusTimer is the Timer State Store: a single Pomodoro countdown whose
// remaining time is always derived from the persisted start instant, so it
// stays correct across teardown and relaunch of the hosting process.
type FocusTimer struct {
	store     domain.RecordStore
	publisher *IntentPublisher
	tracker   domain.ActivityTracker
	clock     domain.Clock
	duration  time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	state     domain.TimerState
	remaining int
	// completedRun is the StartedAt of the last run whose completion fired.
	completedRun *time.Time
}

// NewFocusTimer creates a timer. A non-positive duration selects the default.
// The timer starts idle; call ReconstructOnLoad to pick up persisted state.
func NewFocusTimer(
	store domain.RecordStore,
	publisher *IntentPublisher,
	tracker domain.ActivityTracker,
	clock domain.Clock,
	duration time.Duration,
	logger *zap.Logger,
) *FocusTimer {
	if duration < time.Second {
		duration = domain.DefaultFocusDuration
	}
	t := &FocusTimer{
		store:     store,
		publisher: publisher,
		tracker:   tracker,
		clock:     clock,
		duration:  duration,
		logger:    logger,
	}
	t.remaining = t.durationSeconds()
	return t
}

// ReconstructOnLoad rebuilds the in-memory view from the persisted record.
// An expired running session is clamped to 0 but left running: completion
// only happens through Tick while the hosting context is live.
func (t *FocusTimer) ReconstructOnLoad(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = record.LoadTimerState(ctx, t.store, t.logger)
	t.remaining = t.derive(t.clock.Now())
}

// Start begins or resumes the countdown.
func (t *FocusTimer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.adoptPersisted(ctx)

	if t.state.IsRunning {
		return fmt.Errorf("%w: timer is already running", domain.ErrInvalidTransition)
	}

	now := t.clock.Now()
	remaining := t.derive(now)
	if remaining <= 0 {
		remaining = t.durationSeconds()
	}

	startedAt := now.Add(-time.Duration(t.durationSeconds()-remaining) * time.Second)
	t.state = domain.TimerState{IsRunning: true, StartedAt: &startedAt}
	t.remaining = remaining

	t.logger.Info("focus session started",
		zap.Int("remaining_seconds", remaining),
		zap.Time("started_at", startedAt))

	return t.persist(ctx)
}

// Pause freezes the countdown. A run that has already reached zero completes instead.
func (t *FocusTimer) Pause(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.adoptPersisted(ctx)

	if !t.state.IsRunning {
		return fmt.Errorf("%w: timer is not running", domain.ErrInvalidTransition)
	}

	remaining := t.derive(t.clock.Now())
	if remaining <= 0 {
		t.complete(ctx)
		return nil
	}

	t.state = domain.TimerState{PausedTimeLeft: &remaining}
	t.remaining = remaining

	t.logger.Info("focus session paused", zap.Int("remaining_seconds", remaining))

	return t.persist(ctx)
}

// Reset returns to idle at full duration.
func (t *FocusTimer) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = domain.TimerState{}
	t.remaining = t.durationSeconds()

	t.logger.Info("focus session reset")

	return t.persist(ctx)
}

// Tick refreshes the displayed remaining time from the persisted record, so
// transitions made by another process are picked up. When a running session
// reaches zero it performs the completion transition, once per run.
// Returns true if the session completed on this tick.
func (t *FocusTimer) Tick(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.adoptPersisted(ctx)

	t.remaining = t.derive(t.clock.Now())
	if !t.state.IsRunning || t.remaining > 0 {
		return false
	}
	if t.completedRun != nil && t.state.StartedAt != nil && t.completedRun.Equal(*t.state.StartedAt) {
		return false
	}
	t.complete(ctx)
	return true
}

// RemainingSeconds is the last derived remaining time, in [0, duration].
func (t *FocusTimer) RemainingSeconds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// IsRunning reports whether the countdown is running.
func (t *FocusTimer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.IsRunning
}

// State returns a copy of the in-memory timer record.
func (t *FocusTimer) State() domain.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Snapshot returns the display state.
func (t *FocusTimer) Snapshot() TimerView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TimerView{
		RemainingSeconds: t.remaining,
		DurationSeconds:  t.durationSeconds(),
		IsRunning:        t.state.IsRunning,
		IsPaused:         t.state.IsPaused(),
	}
}

// Duration returns the configured session length.
func (t *FocusTimer) Duration() time.Duration {
	return t.duration
}

// adoptPersisted replaces the in-memory state with the persisted record when
// one can be read. A record still naming the run this timer already completed
// is ignored, as is a missing or unreadable one. Caller holds t.mu.
func (t *FocusTimer) adoptPersisted(ctx context.Context) {
	s, ok := record.ReadTimerState(ctx, t.store, t.logger)
	if !ok {
		return
	}
	if t.completedRun != nil && s.StartedAt != nil && t.completedRun.Equal(*s.StartedAt) {
		return
	}
	t.state = s
}

// complete transitions a finished run to idle, withdraws blocking and
// signals the activity tracker. Failures are logged; the in-memory state
// is idle regardless. Caller holds t.mu.
func (t *FocusTimer) complete(ctx context.Context) {
	if t.state.StartedAt != nil {
		run := *t.state.StartedAt
		t.completedRun = &run
	}
	t.state = domain.TimerState{}
	t.remaining = t.durationSeconds()

	t.logger.Info("focus session completed")

	if err := t.persist(ctx); err != nil {
		t.logger.Warn("failed to persist completed session", zap.Error(err))
	}
	if t.tracker != nil {
		if err := t.tracker.NotifySessionCompleted(ctx); err != nil {
			t.logger.Warn("failed to record completed session", zap.Error(err))
		}
	}
}

// persist writes the timer record and the matching intent. The intent is
// published even if the timer write fails so blocking follows the timer the
// user sees. Caller holds t.mu.
func (t *FocusTimer) persist(ctx context.Context) error {
	var errs []error
	if err := record.Save(ctx, t.store, domain.KeyTimerState, t.state); err != nil {
		errs = append(errs, err)
	}
	if _, err := t.publisher.Publish(ctx, t.state.IsRunning); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// derive computes remaining seconds at now, clamped to [0, duration].
func (t *FocusTimer) derive(now time.Time) int {
	total := t.durationSeconds()
	var remaining int
	switch {
	case t.state.IsRunning && t.state.StartedAt != nil:
		elapsed := int(now.Sub(*t.state.StartedAt) / time.Second)
		remaining = total - elapsed
	case t.state.PausedTimeLeft != nil:
		remaining = *t.state.PausedTimeLeft
	default:
		remaining = total
	}
	if remaining < 0 {
		return 0
	}
	if remaining > total {
		return total
	}
	return remaining
}

func (t *FocusTimer) durationSeconds() int {
	return int(t.duration / time.Second)
}
