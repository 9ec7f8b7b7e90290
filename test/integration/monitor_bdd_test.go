//go:build integration

package integration

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/daemon"
	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/infra"
	"github.com/eliteGoblin/focusd/focusguard/internal/probe"
	"github.com/eliteGoblin/focusd/focusguard/internal/state"
	"github.com/eliteGoblin/focusd/focusguard/internal/usecase"
)

// alertLog records alerts delivered to the monitor's notifier
type alertLog struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (l *alertLog) Notify(a domain.Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, a)
}

func (l *alertLog) kinds() []domain.AlertKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AlertKind, 0, len(l.alerts))
	for _, a := range l.alerts {
		out = append(out, a.Kind)
	}
	return out
}

// safeReputation reports every URL as safe
type safeReputation struct{}

func (safeReputation) Check(context.Context, string, string) (bool, error) { return false, nil }

var _ = Describe("Monitor", func() {
	var (
		tmpDir       string
		monitorStore *infra.EncryptedStore
		cliStore     *infra.EncryptedStore
		registry     *infra.FileRegistry
		alerts       *alertLog
		client       *infra.MonitorClient
		cancel       context.CancelFunc
		done         chan error
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "focusguard-integration-*")
		Expect(err).NotTo(HaveOccurred())

		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		monitorStore, err = infra.NewEncryptedStore(tmpDir, key, logger)
		Expect(err).NotTo(HaveOccurred())

		pm := infra.NewProcessManager()
		registry = infra.NewFileRegistry(tmpDir, pm)
		alerts = &alertLog{}

		cfg := daemon.DefaultMonitorConfig()
		cfg.ListenAddr = "127.0.0.1:0"
		cfg.PollInterval = 50 * time.Millisecond
		cfg.Version = "integration"
		monitor := daemon.NewMonitor(cfg, monitorStore, registry, pm, safeReputation{}, alerts, logger)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- monitor.Run(ctx) }()

		var entry *domain.RegistryEntry
		Eventually(func() *domain.RegistryEntry {
			entry, _ = registry.Get()
			return entry
		}, 5*time.Second, 20*time.Millisecond).ShouldNot(BeNil())
		client = infra.NewMonitorClient(entry.ListenAddr, 2*time.Second)

		// A second handle on the same database stands in for the CLI
		cliStore, err = infra.NewEncryptedStore(tmpDir, key, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cancel()
		Eventually(done, 15*time.Second).Should(Receive(BeNil()))
		cliStore.Close()
		monitorStore.Close()
		os.RemoveAll(tmpDir)
	})

	decide := func(url string) func() domain.Decision {
		return func() domain.Decision {
			d, err := client.Decide(context.Background(), domain.RequestDetails{URL: url})
			if err != nil {
				return ""
			}
			return d
		}
	}

	Describe("focus session", func() {
		Context("when the CLI starts a session", func() {
			It("should block listed sites until the timer expires", func() {
				ctx := context.Background()
				Expect(state.AddBlockedSite(ctx, cliStore, "reddit.com")).To(Succeed())
				Expect(state.SetTimerDuration(ctx, cliStore, 1)).To(Succeed())
				Expect(usecase.StartSession(ctx, cliStore)).To(Succeed())

				Eventually(decide("https://old.reddit.com/r/golang"), 3*time.Second, 20*time.Millisecond).
					Should(Equal(domain.DecisionCancel))
				Expect(decide("https://go.dev/")()).To(Equal(domain.DecisionAllow))

				Eventually(func() bool {
					f, err := state.Focus(ctx, cliStore)
					return err == nil && !f.Active && !f.TimerRunning
				}, 5*time.Second, 50*time.Millisecond).Should(BeTrue())

				Eventually(decide("https://old.reddit.com/r/golang"), 3*time.Second, 20*time.Millisecond).
					Should(Equal(domain.DecisionAllow))
				Expect(alerts.kinds()).To(ContainElement(domain.AlertSessionComplete))
			})
		})

		Context("when the CLI stops a session early", func() {
			It("should unblock without a completion alert", func() {
				ctx := context.Background()
				Expect(state.AddBlockedSite(ctx, cliStore, "news.ycombinator.com")).To(Succeed())
				Expect(usecase.StartSession(ctx, cliStore)).To(Succeed())
				Eventually(decide("https://news.ycombinator.com/"), 3*time.Second, 20*time.Millisecond).
					Should(Equal(domain.DecisionCancel))

				Expect(usecase.StopSession(ctx, cliStore)).To(Succeed())

				Eventually(decide("https://news.ycombinator.com/"), 3*time.Second, 20*time.Millisecond).
					Should(Equal(domain.DecisionAllow))
				Expect(alerts.kinds()).NotTo(ContainElement(domain.AlertSessionComplete))
			})
		})
	})

	Describe("navigation pipeline", func() {
		It("should flag a look-alike over http and count the visit", func() {
			accepted, err := client.ReportNavigation(context.Background(),
				domain.Navigation{URL: "http://paypa1.com/signin"})
			Expect(err).NotTo(HaveOccurred())
			Expect(accepted).To(BeTrue())

			Eventually(alerts.kinds, 3*time.Second, 20*time.Millisecond).Should(
				ContainElements(domain.AlertPhishing, domain.AlertInsecureTransport))
			Eventually(func() int {
				counts, _ := state.TimeSpent(context.Background(), cliStore)
				return counts["paypa1.com"]
			}, 3*time.Second, 50*time.Millisecond).Should(Equal(1))
		})
	})

	Describe("page probe", func() {
		It("should report suspicious password fields to the monitor", func() {
			entry, err := registry.Get()
			Expect(err).NotTo(HaveOccurred())

			page, err := probe.ParsePage("http://shop.example/checkout", strings.NewReader(
				`<html><body><form><input type="password" name="pw"></form></body></html>`))
			Expect(err).NotTo(HaveOccurred())

			messenger := infra.NewHTTPMessenger(entry.ListenAddr, 2*time.Second)
			p := probe.New(page, messenger, cliStore, zap.NewNop())
			p.Run(context.Background())

			Eventually(alerts.kinds, 3*time.Second, 20*time.Millisecond).Should(
				ContainElement(domain.AlertSensitiveForm))
		})

		It("should report cookie scripts inserted after load", func() {
			entry, err := registry.Get()
			Expect(err).NotTo(HaveOccurred())

			page, err := probe.ParsePage("https://news.example/article", strings.NewReader(
				`<html><body><div id="consent"></div></body></html>`))
			Expect(err).NotTo(HaveOccurred())

			messenger := infra.NewHTTPMessenger(entry.ListenAddr, 2*time.Second)
			p := probe.New(page, messenger, cliStore, zap.NewNop())
			p.Run(context.Background())

			mutation, err := page.Insert("#consent", `<script src="/static/cookie-consent.js"></script>`)
			Expect(err).NotTo(HaveOccurred())
			p.Observe(context.Background(), mutation)

			Eventually(alerts.kinds, 3*time.Second, 20*time.Millisecond).Should(
				ContainElement(domain.AlertTrackingCookies))
		})

		It("should replace a blocked page during a session", func() {
			ctx := context.Background()
			Expect(state.AddBlockedSite(ctx, cliStore, "youtube.com")).To(Succeed())
			Expect(usecase.StartSession(ctx, cliStore)).To(Succeed())

			page, err := probe.ParsePage("https://www.youtube.com/", strings.NewReader(
				`<html><body><h1>Recommended</h1></body></html>`))
			Expect(err).NotTo(HaveOccurred())

			p := probe.New(page, infra.NewHTTPMessenger("127.0.0.1:1", time.Second), cliStore, zap.NewNop())
			resp, err := p.HandleMessage(ctx, domain.Message{Type: domain.MsgCheckFocusMode})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Blocked).To(BeTrue())

			var out bytes.Buffer
			Expect(page.Render(&out)).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Focus Mode Active"))
			Expect(out.String()).NotTo(ContainSubstring("Recommended"))
		})
	})
})
