//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/daemon"
	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/infra"
	"github.com/eliteGoblin/focusd/focustab/internal/policy"
	"github.com/eliteGoblin/focusd/focustab/internal/record"
	"github.com/eliteGoblin/focusd/focustab/internal/usecase"
)

// foreignRule is owned by another extension. It is installed after the
// startup sweep and must survive every intent cycle.
var foreignRule = domain.Rule{
	ID:       7,
	Priority: 1,
	Condition: domain.RuleCondition{
		URLFilter:      domain.DomainURLFilter("foreign.test"),
		RequestDomains: []string{"foreign.test"},
		ResourceTypes:  []domain.ResourceType{domain.ResourceMainFrame},
	},
	Action: domain.RuleAction{Type: domain.ActionRedirect, RedirectPath: "/elsewhere"},
}

var _ = Describe("Focus session blocking", func() {
	var (
		tmpDir      string
		logger      *zap.Logger
		engine      *infra.MemoryEngine
		sync        *usecase.Synchronizer
		daemonStore *infra.FileStore
		uiStore     *infra.FileStore
		cancel      context.CancelFunc
		done        chan error

		timer    *usecase.FocusTimer
		sites    *usecase.SiteManager
		activity *usecase.Activity
	)

	blocked := func(url string) func() bool {
		return func() bool {
			_, ok := engine.Evaluate(url, domain.ResourceMainFrame)
			return ok
		}
	}

	ownedRuleCount := func() int {
		return len(sync.InstalledRuleIDs())
	}

	launchDaemon := func(stale ...domain.Rule) {
		var err error
		engine = infra.NewMemoryEngine(stale...)
		sync = usecase.NewSynchronizer(engine, usecase.DefaultSyncConfig(), logger)

		daemonStore, err = infra.NewFileStore(filepath.Join(tmpDir, "records"), logger)
		Expect(err).NotTo(HaveOccurred())

		registry := infra.NewFileRegistry(tmpDir, infra.NewProcessManager())
		blocker := daemon.NewBlocker(
			daemon.BlockerConfig{HeartbeatInterval: time.Hour, ClearOnExit: true},
			sync,
			daemonStore,
			registry,
			nil,
			domain.Daemon{PID: os.Getpid(), Role: domain.RoleBlocker, StartedAt: time.Now(), AppVersion: "test"},
			logger,
		)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- blocker.Run(ctx) }()

		Eventually(sync.Started, 5*time.Second).Should(BeTrue())
		Expect(engine.InstallRules(context.Background(), []domain.Rule{foreignRule})).To(Succeed())
	}

	startDaemon := func(stale ...domain.Rule) {
		launchDaemon(stale...)

		// The subscription follows the sweep; retry until an intent lands.
		Eventually(func() bool {
			_ = record.Save(context.Background(), uiStore, domain.KeyBlockingIntent, domain.BlockingIntent{
				Active: true, Domains: []string{"warmup.test"}, UpdatedAt: time.Now(),
			})
			return blocked("https://warmup.test/")()
		}, 5*time.Second, 100*time.Millisecond).Should(BeTrue())

		Expect(record.Save(context.Background(), uiStore, domain.KeyBlockingIntent, domain.BlockingIntent{
			Domains: []string{}, UpdatedAt: time.Now(),
		})).To(Succeed())
		Eventually(ownedRuleCount, 5*time.Second).Should(BeZero())
	}

	newForeground := func(duration time.Duration) {
		clock := infra.SystemClock{}
		catalog := policy.NewRegistry()
		publisher := usecase.NewIntentPublisher(uiStore, catalog, clock, logger)
		activity = usecase.NewActivity(uiStore, clock, time.UTC, logger)
		timer = usecase.NewFocusTimer(uiStore, publisher, activity, clock, duration, logger)
		sites = usecase.NewSiteManager(uiStore, publisher, catalog, logger)
		timer.ReconstructOnLoad(context.Background())
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "focustab-integration-*")
		Expect(err).NotTo(HaveOccurred())

		logger = zap.NewNop()
		uiStore, err = infra.NewFileStore(filepath.Join(tmpDir, "records"), logger)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if cancel != nil {
			cancel()
			Eventually(done, 5*time.Second).Should(Receive())
			cancel = nil
		}
		if daemonStore != nil {
			_ = daemonStore.Close()
			daemonStore = nil
		}
		_ = uiStore.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("running a session", func() {
		BeforeEach(func() {
			startDaemon()
			newForeground(25 * time.Minute)
		})

		Context("when the timer starts with reddit selected", func() {
			It("should block reddit and its subdomains only", func() {
				ctx := context.Background()
				_, err := sites.Toggle(ctx, "reddit")
				Expect(err).NotTo(HaveOccurred())
				Expect(ownedRuleCount()).To(BeZero())

				Expect(timer.Start(ctx)).To(Succeed())

				Eventually(blocked("https://www.reddit.com/r/golang"), 5*time.Second).Should(BeTrue())
				Expect(blocked("https://redd.it/abc")()).To(BeTrue())
				Expect(blocked("https://old.reddit.com/")()).To(BeTrue())
				Expect(blocked("https://example.com/")()).To(BeFalse())
				Expect(blocked("https://foreign.test/")()).To(BeTrue(), "foreign rule untouched")
			})
		})

		Context("when the timer is paused", func() {
			It("should remove our rules and keep foreign ones", func() {
				ctx := context.Background()
				_, err := sites.Toggle(ctx, "reddit")
				Expect(err).NotTo(HaveOccurred())
				Expect(timer.Start(ctx)).To(Succeed())
				Eventually(ownedRuleCount, 5*time.Second).Should(Equal(2))

				Expect(timer.Pause(ctx)).To(Succeed())

				Eventually(ownedRuleCount, 5*time.Second).Should(BeZero())
				Expect(sync.State()).To(Equal(usecase.SyncEmpty))
				Expect(blocked("https://foreign.test/")()).To(BeTrue())
			})
		})

		Context("when a custom site is added mid-session", func() {
			It("should extend the blocked set immediately", func() {
				ctx := context.Background()
				Expect(timer.Start(ctx)).To(Succeed())

				site, added, err := sites.AddCustom(ctx, "https://www.Example.com/feed")
				Expect(err).NotTo(HaveOccurred())
				Expect(added).To(BeTrue())
				Expect(site.Domain).To(Equal("example.com"))

				Eventually(blocked("https://example.com/"), 5*time.Second).Should(BeTrue())

				removed, err := sites.RemoveCustom(ctx, site.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(removed).To(BeTrue())
				Eventually(blocked("https://example.com/"), 5*time.Second).Should(BeFalse())
			})
		})

		Context("when the daemon stops gracefully", func() {
			It("should clear installed rules", func() {
				ctx := context.Background()
				_, err := sites.Toggle(ctx, "youtube")
				Expect(err).NotTo(HaveOccurred())
				Expect(timer.Start(ctx)).To(Succeed())
				Eventually(ownedRuleCount, 5*time.Second).Should(Equal(2))

				cancel()
				Eventually(done, 5*time.Second).Should(Receive(MatchError(context.Canceled)))
				cancel = nil

				rules, err := engine.ListInstalledRules(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(rules).To(ConsistOf(foreignRule))
			})
		})
	})

	Describe("completing a session", func() {
		BeforeEach(func() {
			startDaemon()
			newForeground(time.Second)
		})

		It("should unblock and record the streak", func() {
			ctx := context.Background()
			_, err := sites.Toggle(ctx, "twitch")
			Expect(err).NotTo(HaveOccurred())
			Expect(timer.Start(ctx)).To(Succeed())
			Eventually(blocked("https://twitch.tv/"), 5*time.Second).Should(BeTrue())

			Eventually(func() bool {
				timer.Tick(ctx)
				return timer.IsRunning()
			}, 5*time.Second, 100*time.Millisecond).Should(BeFalse())

			Expect(timer.RemainingSeconds()).To(Equal(1))
			Eventually(blocked("https://twitch.tv/"), 5*time.Second).Should(BeFalse())

			data := activity.Current(ctx)
			Expect(data.Streak).To(Equal(1))
			Expect(data.SessionsToday).To(Equal(1))
			Expect(data.TotalSessions).To(Equal(1))
		})
	})

	Describe("daemon startup", func() {
		It("should sweep every rule left over from a previous run", func() {
			stale := domain.Rule{
				ID:        usecase.DefaultRuleIDBase + 3,
				Condition: domain.RuleCondition{URLFilter: domain.DomainURLFilter("stale.test"), ResourceTypes: []domain.ResourceType{domain.ResourceMainFrame}},
				Action:    domain.RuleAction{Type: domain.ActionRedirect, RedirectPath: "/blocked.html"},
			}
			leftover := foreignRule
			leftover.ID = 42
			startDaemon(stale, leftover)

			rules, err := engine.ListInstalledRules(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(rules).To(ConsistOf(foreignRule))
		})

		It("should apply an intent persisted before it started", func() {
			ctx := context.Background()
			newForeground(25 * time.Minute)
			_, err := sites.Toggle(ctx, "netflix")
			Expect(err).NotTo(HaveOccurred())
			Expect(timer.Start(ctx)).To(Succeed())

			launchDaemon(domain.Rule{ID: usecase.DefaultRuleIDBase + 9})

			Eventually(blocked("https://www.netflix.com/browse"), 5*time.Second).Should(BeTrue())
			Expect(sync.InstalledRuleIDs()).To(Equal([]int{usecase.DefaultRuleIDBase}))
		})
	})
})
