// Package main is the CLI entry point for focustab.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/daemon"
	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/infra"
	"github.com/eliteGoblin/focusd/focustab/internal/ui"
	"github.com/eliteGoblin/focusd/focustab/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "focustab",
	Short: "Focus timer that blocks distracting sites while it runs",
	Long: `focustab runs a Pomodoro-style focus countdown. While the countdown is
running, a background daemon keeps redirect rules installed for every
selected site; pausing, resetting or finishing the session removes them.`,
	Version:       Version,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is normal.
		_ = godotenv.Load()
	},
}

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Control the focus countdown",
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start or resume the focus countdown (starts the blocker daemon if needed)",
	RunE:  runTimerStart,
}

var timerPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running countdown",
	RunE:  runTimerPause,
}

var timerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Stop the countdown and restore the full duration",
	RunE:  runTimerReset,
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the remaining time",
	RunE:  runTimerStatus,
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage the sites blocked during a session",
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List preset and custom sites",
	RunE:  runSitesList,
}

var sitesToggleCmd = &cobra.Command{
	Use:   "toggle <preset-id>",
	Short: "Select or deselect a preset site",
	Args:  cobra.ExactArgs(1),
	RunE:  runSitesToggle,
}

var sitesAddCmd = &cobra.Command{
	Use:   "add <domain>",
	Short: "Add a custom domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runSitesAdd,
}

var sitesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a custom domain by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runSitesRemove,
}

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive timer",
	RunE:  runUI,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the blocker daemon in the foreground",
	Long: `Runs the rule synchronizer and the placeholder page server.
Normally spawned in the background by 'focustab timer start' or 'focustab ui'.`,
	RunE: runDaemon,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background blocker daemon",
	RunE:  runDaemonStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, timer and blocking status",
	RunE:  runStatus,
}

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Check whether a URL is blocked by the installed rules",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the focus streak",
	RunE:  runActivity,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	dataDir    string
	configPath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default depends on exec mode)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <data-dir>/config.toml)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	timerCmd.AddCommand(timerStartCmd, timerPauseCmd, timerResetCmd, timerStatusCmd)
	sitesCmd.AddCommand(sitesListCmd, sitesToggleCmd, sitesAddCmd, sitesRemoveCmd)
	daemonCmd.AddCommand(daemonStopCmd)

	rootCmd.AddCommand(timerCmd)
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(versionCmd)
}

// withTimer runs fn against a timer reconstructed from the persisted state.
func withTimer(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	a.timer.ReconstructOnLoad(ctx)
	return fn(ctx, a)
}

func runTimerStart(cmd *cobra.Command, args []string) error {
	return withTimer(cmd, func(ctx context.Context, a *app) error {
		if err := a.timer.Start(ctx); err != nil {
			return err
		}
		a.ensureDaemon()
		fmt.Printf("Focusing: %s remaining\n", ui.FormatRemaining(a.timer.RemainingSeconds()))
		return nil
	})
}

func runTimerPause(cmd *cobra.Command, args []string) error {
	return withTimer(cmd, func(ctx context.Context, a *app) error {
		if err := a.timer.Pause(ctx); err != nil {
			return err
		}
		printTimer(a.timer.Snapshot())
		return nil
	})
}

func runTimerReset(cmd *cobra.Command, args []string) error {
	return withTimer(cmd, func(ctx context.Context, a *app) error {
		if err := a.timer.Reset(ctx); err != nil {
			return err
		}
		printTimer(a.timer.Snapshot())
		return nil
	})
}

func runTimerStatus(cmd *cobra.Command, args []string) error {
	return withTimer(cmd, func(ctx context.Context, a *app) error {
		// A session that ran out while nobody was watching completes here.
		a.timer.Tick(ctx)
		printTimer(a.timer.Snapshot())
		return nil
	})
}

func printTimer(v usecase.TimerView) {
	state := "idle"
	switch {
	case v.IsRunning:
		state = "focusing"
	case v.IsPaused:
		state = "paused"
	}
	fmt.Printf("%s  (%s)\n", ui.FormatRemaining(v.RemainingSeconds), state)
}

func runSitesList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	sel := a.sites.Selection(cmd.Context())

	fmt.Println("\n=== Preset Sites ===")
	for _, p := range a.catalog.GetAll() {
		mark := " "
		if sel.HasPreset(p.ID()) {
			mark = "x"
		}
		fmt.Printf("  [%s] %-11s %s (%s)\n", mark, p.ID(), p.Name(), strings.Join(p.Domains(), ", "))
	}

	fmt.Println("\n=== Custom Sites ===")
	if len(sel.CustomSites) == 0 {
		fmt.Println("  (none)")
	}
	for _, c := range sel.CustomSites {
		fmt.Printf("  %s  %s\n", c.ID, c.Domain)
	}
	fmt.Println("====================")
	return nil
}

func runSitesToggle(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	selected, err := a.sites.Toggle(cmd.Context(), domain.PresetID(args[0]))
	if err != nil {
		return err
	}
	if selected {
		fmt.Printf("%s selected\n", args[0])
	} else {
		fmt.Printf("%s deselected\n", args[0])
	}
	return nil
}

func runSitesAdd(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	site, added, err := a.sites.AddCustom(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !added {
		fmt.Printf("%q not added (not a valid domain or already present)\n", args[0])
		return nil
	}
	fmt.Printf("Added %s (id %s)\n", site.Domain, site.ID)
	return nil
}

func runSitesRemove(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.sites.RemoveCustom(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no custom site with id %s", args[0])
	}
	fmt.Printf("Removed %s\n", args[0])
	return nil
}

func runUI(cmd *cobra.Command, args []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	a.ensureDaemon()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return ui.Run(ctx, a.timer, a.sites, a.activity)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	d := domain.Daemon{
		PID:        os.Getpid(),
		Role:       domain.RoleBlocker,
		StartedAt:  time.Now(),
		AppVersion: Version,
		Engine:     a.cfg.Blocking.Engine,
	}

	var placeholder daemon.Runner
	if a.cfg.Placeholder.Enabled {
		placeholder = infra.NewPlaceholderServer(a.cfg.Placeholder.Listen, a.cfg.Blocking.RedirectPath, logger)
	}

	blocker := daemon.NewBlocker(
		daemon.BlockerConfig{
			HeartbeatInterval: a.cfg.Daemon.HeartbeatInterval.Duration,
			ClearOnExit:       a.cfg.Daemon.ClearOnExit,
		},
		usecase.NewSynchronizer(engine, a.syncConfig(), logger),
		a.store,
		a.registry,
		placeholder,
		d,
		logger,
	)

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = blocker.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("received shutdown signal")
		return nil
	}
	if err != nil {
		logger.Error("blocker daemon exited", zap.Error(err))
	}
	return err
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	stopped, err := daemon.StopDaemon(a.registry, a.pm)
	if err != nil {
		return err
	}
	if stopped {
		fmt.Println("Blocker daemon stopped.")
	} else {
		fmt.Println("Blocker daemon was not running.")
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	fmt.Println("\n=== focustab Status ===")
	fmt.Printf("Execution mode: %s\n", a.exec.Mode)
	fmt.Printf("Data dir: %s\n", a.dataDir)

	entry, err := a.registry.GetAll()
	switch {
	case err != nil:
		fmt.Printf("Daemon: UNKNOWN (%v)\n", err)
	case entry == nil || !a.pm.IsRunning(entry.PID):
		fmt.Println("Daemon: NOT RUNNING")
	default:
		fmt.Printf("Daemon: RUNNING (pid %d, version %s, engine %s)\n", entry.PID, entry.AppVersion, entry.Engine)
		if entry.LastHeartbeat > 0 {
			lastBeat := time.Unix(entry.LastHeartbeat, 0)
			fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
		}
	}

	a.timer.ReconstructOnLoad(ctx)
	fmt.Print("Timer: ")
	printTimer(a.timer.Snapshot())

	if intent, ok := persistedIntent(ctx, a.store); ok {
		fmt.Printf("Blocking intent: active=%t, %d domains (updated %s)\n",
			intent.Active, len(intent.Domains), intent.UpdatedAt.Local().Format(time.RFC3339))
	} else {
		fmt.Println("Blocking intent: none published")
	}

	engine, err := a.newEngine()
	if err != nil {
		return err
	}
	rules, err := engine.ListInstalledRules(ctx)
	if err != nil {
		fmt.Printf("Installed rules: unavailable (%v)\n", err)
	} else {
		owned := ownedRules(rules, a.syncConfig())
		fmt.Printf("Installed rules: %d\n", len(owned))
		for _, r := range owned {
			fmt.Printf("  - [%d] %s\n", r.ID, strings.Join(r.Condition.RequestDomains, ", "))
		}
	}

	fmt.Println("=======================")
	return nil
}

// ownedRules filters rules to the synchronizer's ID range.
func ownedRules(rules []domain.Rule, cfg usecase.SyncConfig) []domain.Rule {
	var out []domain.Rule
	for _, r := range rules {
		if r.ID >= cfg.RuleIDBase && r.ID < cfg.RuleIDBase+cfg.RuleIDLimit {
			out = append(out, r)
		}
	}
	return out
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.newEngine()
	if err != nil {
		return err
	}
	rules, err := engine.ListInstalledRules(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list installed rules: %w", err)
	}

	rule, ok := infra.MatchRules(rules, args[0], domain.ResourceMainFrame)
	if !ok {
		fmt.Printf("ALLOWED  %s\n", args[0])
		return nil
	}
	fmt.Printf("BLOCKED  %s (rule %d, redirect %s)\n", args[0], rule.ID, rule.Action.RedirectPath)
	return nil
}

func runActivity(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	data := a.activity.Current(cmd.Context())
	fmt.Printf("Streak: %d day(s)\n", data.Streak)
	fmt.Printf("Sessions today: %d\n", data.SessionsToday)
	fmt.Printf("Total sessions: %d\n", data.TotalSessions)
	if data.LastFocusDate != "" {
		fmt.Printf("Last focus day: %s\n", data.LastFocusDate)
	}
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("focustab %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
