package infra

import (
	"time"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

// SystemClock implements domain.Clock with the wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Ensure SystemClock implements domain.Clock.
var _ domain.Clock = SystemClock{}
