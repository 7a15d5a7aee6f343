// Package record encodes the shared persisted records and falls back to
// defaults when a record is missing or malformed.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

// Load decodes key into v. Missing keys leave v untouched and return false.
// Read or decode failures are logged, v is left untouched, and false is returned:
// callers pass v pre-filled with the default value.
func Load(ctx context.Context, store domain.RecordStore, key string, v any, logger *zap.Logger) bool {
	data, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("failed to read record, using defaults",
				zap.String("key", key),
				zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warn("malformed record, using defaults",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	return true
}

// Save encodes v and writes it under key.
func Save(ctx context.Context, store domain.RecordStore, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// LoadTimerState returns the persisted timer state or the idle default.
func LoadTimerState(ctx context.Context, store domain.RecordStore, logger *zap.Logger) domain.TimerState {
	s, _ := ReadTimerState(ctx, store, logger)
	return s
}

// ReadTimerState is LoadTimerState that also reports whether a usable
// record was found.
func ReadTimerState(ctx context.Context, store domain.RecordStore, logger *zap.Logger) (domain.TimerState, bool) {
	var s domain.TimerState
	if !Load(ctx, store, domain.KeyTimerState, &s, logger) {
		return domain.TimerState{}, false
	}
	return sanitizeTimerState(s), true
}

// LoadSiteSelection returns the persisted selection or an empty one.
func LoadSiteSelection(ctx context.Context, store domain.RecordStore, logger *zap.Logger) domain.SiteSelection {
	var s domain.SiteSelection
	if !Load(ctx, store, domain.KeySiteSelection, &s, logger) {
		return domain.SiteSelection{}
	}
	return s
}

// LoadActivity returns the persisted activity record or a zero one.
func LoadActivity(ctx context.Context, store domain.RecordStore, logger *zap.Logger) domain.ActivityData {
	var a domain.ActivityData
	if !Load(ctx, store, domain.KeyActivity, &a, logger) {
		return domain.ActivityData{}
	}
	return a
}

// DecodeIntent decodes a raw intent payload and enforces its invariant.
func DecodeIntent(data []byte) (domain.BlockingIntent, error) {
	var intent domain.BlockingIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return domain.BlockingIntent{}, fmt.Errorf("failed to decode intent: %w", err)
	}
	return NormalizeIntent(intent), nil
}

// NormalizeIntent returns an intent whose domains are a sorted set, empty when inactive.
func NormalizeIntent(intent domain.BlockingIntent) domain.BlockingIntent {
	if !intent.Active {
		intent.Domains = []string{}
		return intent
	}
	normalized := make([]string, 0, len(intent.Domains))
	for _, d := range intent.Domains {
		normalized = append(normalized, domain.NormalizeDomain(d))
	}
	intent.Domains = domain.UniqueSorted(normalized)
	return intent
}

// sanitizeTimerState repairs records that violate the one-of invariant.
// A running record keeps StartedAt; a stopped one keeps PausedTimeLeft.
func sanitizeTimerState(s domain.TimerState) domain.TimerState {
	if s.IsRunning {
		if s.StartedAt == nil {
			return domain.TimerState{}
		}
		s.PausedTimeLeft = nil
		return s
	}
	s.StartedAt = nil
	if s.PausedTimeLeft != nil && *s.PausedTimeLeft < 0 {
		s.PausedTimeLeft = nil
	}
	return s
}
