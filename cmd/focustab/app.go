package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/focustab/internal/config"
	"github.com/eliteGoblin/focusd/focustab/internal/daemon"
	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/infra"
	"github.com/eliteGoblin/focusd/focustab/internal/policy"
	"github.com/eliteGoblin/focusd/focustab/internal/record"
	"github.com/eliteGoblin/focusd/focustab/internal/usecase"
)

// app bundles everything a command needs. Built once per invocation.
type app struct {
	dataDir  string
	exec     *infra.ExecModeConfig
	cfg      *config.Config
	logger   *zap.Logger
	store    domain.RecordStore
	catalog  *policy.Registry
	pm       domain.ProcessManager
	registry domain.DaemonRegistry

	publisher *usecase.IntentPublisher
	activity  *usecase.Activity
	timer     *usecase.FocusTimer
	sites     *usecase.SiteManager
}

// loadApp reads configuration and opens the record store.
// background selects the file logger used by the daemon and the TUI.
func loadApp(background bool) (*app, error) {
	execMode := infra.DetectExecMode()
	dir := dataDir
	if dir == "" {
		dir = execMode.DataDir
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.Path(dir)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logPath := cfg.Logging.File
	if logPath == "" {
		logPath = execMode.LogPath
		if dir != execMode.DataDir {
			logPath = filepath.Join(dir, "focustab.log")
		}
	}
	logger := createLogger(cfg.Logging.Level, logPath, background)

	store, err := openStore(cfg, dir, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	clock := infra.SystemClock{}
	catalog := policy.NewRegistry()
	pm := infra.NewProcessManager()
	publisher := usecase.NewIntentPublisher(store, catalog, clock, logger)
	activity := usecase.NewActivity(store, clock, loc, logger)

	return &app{
		dataDir:   dir,
		exec:      execMode,
		cfg:       cfg,
		logger:    logger,
		store:     store,
		catalog:   catalog,
		pm:        pm,
		registry:  infra.NewFileRegistry(dir, pm),
		publisher: publisher,
		activity:  activity,
		timer:     usecase.NewFocusTimer(store, publisher, activity, clock, cfg.Timer.Duration.Duration, logger),
		sites:     usecase.NewSiteManager(store, publisher, catalog, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close record store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// daemonArgs are passed to a spawned daemon so it shares our data directory.
func (a *app) daemonArgs() []string {
	args := []string{"--data-dir", a.dataDir}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}

// ensureDaemon spawns the blocker unless one is alive. Failures are reported, not fatal.
func (a *app) ensureDaemon() {
	spawned, err := daemon.EnsureRunning(a.registry, a.logger, a.daemonArgs()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not start blocker daemon: %v\n", err)
		return
	}
	if spawned {
		fmt.Println("Blocker daemon started.")
	}
}

// newEngine builds the configured rule engine.
func (a *app) newEngine() (domain.RuleEngine, error) {
	switch a.cfg.Blocking.Engine {
	case config.EngineHosts:
		return infra.NewHostsEngine(a.cfg.Blocking.HostsPath, a.cfg.Blocking.RedirectIP, a.logger), nil
	case config.EngineMemory:
		return infra.NewMemoryEngine(), nil
	default:
		return nil, fmt.Errorf("unknown rule engine: %s", a.cfg.Blocking.Engine)
	}
}

func (a *app) syncConfig() usecase.SyncConfig {
	return usecase.SyncConfig{
		RuleIDBase:   a.cfg.Blocking.RuleIDBase,
		RuleIDLimit:  a.cfg.Blocking.RuleIDLimit,
		Priority:     a.cfg.Blocking.Priority,
		RedirectPath: a.cfg.Blocking.RedirectPath,
	}
}

func openStore(cfg *config.Config, dir string, logger *zap.Logger) (domain.RecordStore, error) {
	recordDir := cfg.RecordDir(dir)
	switch cfg.Storage.Backend {
	case config.StorageFile:
		return infra.NewFileStore(recordDir, logger)
	case config.StorageEncrypted:
		key, err := infra.EnsureKey(infra.NewFileKeyProvider(dir))
		if err != nil {
			return nil, fmt.Errorf("failed to load record store key: %w", err)
		}
		return infra.NewEncryptedStore(recordDir, key, logger)
	case config.StorageMemory:
		return infra.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// createLogger writes JSON to logPath for background processes and
// human-readable output to stderr for one-shot commands.
func createLogger(level, logPath string, background bool) *zap.Logger {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	if !background {
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(max(lvl, zapcore.WarnLevel))
		logger, err := config.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.OutputPaths = []string{logPath}
	config.ErrorOutputPaths = []string{logPath}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

// persistedIntent reads the last published intent, if any.
func persistedIntent(ctx context.Context, store domain.RecordStore) (domain.BlockingIntent, bool) {
	data, err := store.Get(ctx, domain.KeyBlockingIntent)
	if err != nil {
		return domain.BlockingIntent{}, false
	}
	intent, err := record.DecodeIntent(data)
	if err != nil {
		return domain.BlockingIntent{}, false
	}
	return intent, true
}
