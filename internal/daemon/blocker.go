// Package daemon implements the background blocker daemon.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/record"
	"github.com/eliteGoblin/focusd/focustab/internal/usecase"
)

// ErrAlreadyRunning is returned when another live daemon is registered.
var ErrAlreadyRunning = errors.New("blocker daemon already running")

// Runner is a background service started alongside the blocker (placeholder server).
type Runner interface {
	Run(ctx context.Context) error
}

// BlockerConfig holds blocker daemon configuration.
type BlockerConfig struct {
	HeartbeatInterval time.Duration // How often to update heartbeat
	ClearOnExit       bool          // Remove installed rules on graceful shutdown
}

// DefaultBlockerConfig returns default blocker configuration.
func DefaultBlockerConfig() BlockerConfig {
	return BlockerConfig{
		HeartbeatInterval: 30 * time.Second,
		ClearOnExit:       true,
	}
}

// Blocker hosts the rule synchronizer. It sweeps stale rules on start, applies
// the persisted intent, then every blocking intent change, one at a time,
// until ctx is canceled.
type Blocker struct {
	config      BlockerConfig
	sync        *usecase.Synchronizer
	store       domain.RecordStore
	registry    domain.DaemonRegistry
	placeholder Runner
	daemon      domain.Daemon
	logger      *zap.Logger
}

// NewBlocker creates a new blocker daemon. placeholder may be nil.
func NewBlocker(
	config BlockerConfig,
	sync *usecase.Synchronizer,
	store domain.RecordStore,
	registry domain.DaemonRegistry,
	placeholder Runner,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Blocker {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultBlockerConfig().HeartbeatInterval
	}
	return &Blocker{
		config:      config,
		sync:        sync,
		store:       store,
		registry:    registry,
		placeholder: placeholder,
		daemon:      daemon,
		logger:      logger,
	}
}

// Run starts the blocker daemon loop.
// This blocks until context is canceled.
func (b *Blocker) Run(ctx context.Context) error {
	entry, err := b.registry.GetAll()
	if err != nil {
		b.logger.Warn("unreadable daemon registry, treating as fresh install", zap.Error(err))
		entry = nil
	}
	if entry != nil && entry.PID != b.daemon.PID {
		if alive, _ := b.registry.IsAlive(); alive {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, entry.PID)
		}
	}
	install := entry == nil || entry.AppVersion != b.daemon.AppVersion

	if err := b.registry.Register(b.daemon); err != nil {
		b.logger.Error("failed to register blocker", zap.Error(err))
		return err
	}

	b.logger.Info("blocker daemon started",
		zap.Int("pid", b.daemon.PID),
		zap.String("version", b.daemon.AppVersion),
		zap.String("engine", b.daemon.Engine),
		zap.Bool("install", install))

	// Engine failures are logged by the synchronizer; the sweep still counts.
	if install {
		_ = b.sync.OnInstall(ctx)
	} else {
		_ = b.sync.OnStartup(ctx)
	}

	changes, err := b.store.Watch(ctx, domain.KeyBlockingIntent)
	if err != nil {
		b.logger.Error("failed to watch blocking intent", zap.Error(err))
		return err
	}

	// An intent written while no daemon was running is applied once, after the sweep.
	if data, err := b.store.Get(ctx, domain.KeyBlockingIntent); err == nil {
		b.apply(ctx, data)
	} else if !errors.Is(err, domain.ErrNotFound) {
		b.logger.Warn("failed to read persisted blocking intent", zap.Error(err))
	}

	if b.placeholder != nil {
		go func() {
			if err := b.placeholder.Run(ctx); err != nil {
				b.logger.Error("placeholder server stopped", zap.Error(err))
			}
		}()
	}

	heartbeatTicker := time.NewTicker(b.config.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("blocker daemon stopping")
			b.shutdown()
			return ctx.Err()

		case change, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					changes = nil
					continue
				}
				b.logger.Warn("intent watch closed, resubscribing")
				changes, err = b.store.Watch(ctx, domain.KeyBlockingIntent)
				if err != nil {
					b.logger.Error("failed to resubscribe to blocking intent", zap.Error(err))
					b.shutdown()
					return err
				}
				continue
			}
			b.apply(ctx, change.Value)

		case <-heartbeatTicker.C:
			if err := b.registry.UpdateHeartbeat(); err != nil {
				b.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// apply decodes and applies one intent payload. Malformed payloads are skipped.
func (b *Blocker) apply(ctx context.Context, data []byte) {
	intent, err := record.DecodeIntent(data)
	if err != nil {
		b.logger.Warn("skipping malformed blocking intent", zap.Error(err))
		return
	}
	if err := b.sync.OnIntentChanged(ctx, intent); err != nil {
		b.logger.Debug("intent cycle abandoned", zap.Error(err))
		return
	}
	b.logger.Debug("intent applied",
		zap.Bool("active", intent.Active),
		zap.Ints("rule_ids", b.sync.InstalledRuleIDs()))
}

func (b *Blocker) shutdown() {
	if !b.config.ClearOnExit || len(b.sync.InstalledRuleIDs()) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.sync.OnIntentChanged(ctx, domain.BlockingIntent{Domains: []string{}}); err != nil {
		b.logger.Warn("failed to clear rules on exit", zap.Error(err))
	}
}
