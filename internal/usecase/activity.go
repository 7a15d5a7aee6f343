package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/record"
)

const dateLayout = "2006-01-02"

// Activity is the session-completed consumer. It keeps a daily focus streak
// evaluated in a fixed timezone.
type Activity struct {
	store  domain.RecordStore
	clock  domain.Clock
	loc    *time.Location
	logger *zap.Logger

	mu sync.Mutex
}

// NewActivity creates an activity tracker. A nil location means time.Local.
func NewActivity(store domain.RecordStore, clock domain.Clock, loc *time.Location, logger *zap.Logger) *Activity {
	if loc == nil {
		loc = time.Local
	}
	return &Activity{
		store:  store,
		clock:  clock,
		loc:    loc,
		logger: logger,
	}
}

// NotifySessionCompleted records one completed session.
func (a *Activity) NotifySessionCompleted(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data := record.LoadActivity(ctx, a.store, a.logger)
	today := a.clock.Now().In(a.loc)
	next := NextActivity(data, today)

	a.logger.Info("session recorded",
		zap.Int("streak", next.Streak),
		zap.Int("sessions_today", next.SessionsToday))

	return record.Save(ctx, a.store, domain.KeyActivity, next)
}

// Current returns the activity record as of now: counters for a previous
// day read as zero sessions today.
func (a *Activity) Current(ctx context.Context) domain.ActivityData {
	data := record.LoadActivity(ctx, a.store, a.logger)
	today := a.clock.Now().In(a.loc).Format(dateLayout)
	if data.Date < today {
		data.SessionsToday = 0
	}
	return data
}

// NextActivity applies one completed session at now (already in the
// tracker's timezone) to data.
//
// Same calendar day as LastFocusDate keeps the streak, the following day
// extends it, a LastFocusDate after today is treated as the same day and
// left in place, and any other gap restarts the streak at 1.
func NextActivity(data domain.ActivityData, now time.Time) domain.ActivityData {
	today := now.Format(dateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)

	next := data
	switch {
	case data.LastFocusDate == "":
		next.Streak = 1
		next.LastFocusDate = today
	case data.LastFocusDate == today:
		if next.Streak < 1 {
			next.Streak = 1
		}
	case data.LastFocusDate > today:
		if next.Streak < 1 {
			next.Streak = 1
		}
	case data.LastFocusDate == yesterday:
		next.Streak = data.Streak + 1
		next.LastFocusDate = today
	default:
		next.Streak = 1
		next.LastFocusDate = today
	}

	if data.Date != "" && data.Date >= today {
		next.SessionsToday = data.SessionsToday + 1
	} else {
		next.SessionsToday = 1
		next.Date = today
	}
	next.TotalSessions = data.TotalSessions + 1
	return next
}
