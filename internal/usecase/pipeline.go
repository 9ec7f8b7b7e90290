package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/policy"
	"github.com/eliteGoblin/focusd/focusguard/internal/state"
)

// errNoHost marks a check skipped because the URL has no hostname.
var errNoHost = errors.New("url has no hostname")

// Pipeline runs the per-navigation security checks.
type Pipeline struct {
	store      domain.Store
	reputation domain.ReputationChecker
	notifier   domain.Notifier
	phishing   policy.Family
	logger     *zap.Logger
}

// NewPipeline creates a security check pipeline.
func NewPipeline(
	store domain.Store,
	reputation domain.ReputationChecker,
	notifier domain.Notifier,
	phishing policy.Family,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:      store,
		reputation: reputation,
		notifier:   notifier,
		phishing:   phishing,
		logger:     logger,
	}
}

// Run executes every check for a completed top-level navigation. The checks
// run concurrently and independently: a failing check is logged and never
// suppresses the others. Run returns once all checks and the focus-mode
// warning have finished; callers treat it as fire-and-forget.
func (p *Pipeline) Run(ctx context.Context, nav domain.Navigation) {
	var g errgroup.Group

	p.spawn(&g, "reputation", nav, func() error { return p.checkReputation(ctx, nav.URL) })
	p.spawn(&g, "phishing", nav, func() error { return p.checkPhishing(nav.URL) })
	p.spawn(&g, "transport", nav, func() error { return p.checkTransport(nav.URL) })
	p.spawn(&g, "time_tracking", nav, func() error { return p.trackTime(ctx, nav.URL) })
	p.spawn(&g, "cookies", nav, func() error { return p.checkCookies(ctx, nav) })

	_ = g.Wait()

	p.checkFocusWarning(ctx, nav.URL)
}

// spawn runs check in the group, logging instead of returning its error so
// that one failure cannot short-circuit the rest.
func (p *Pipeline) spawn(g *errgroup.Group, name string, nav domain.Navigation, check func() error) {
	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("security check panicked",
					zap.String("check", name),
					zap.String("url", nav.URL),
					zap.Any("panic", r))
			}
		}()
		if err := check(); err != nil {
			p.logger.Warn("security check failed",
				zap.String("check", name),
				zap.String("url", nav.URL),
				zap.Error(err))
		}
		return nil
	})
}

// checkReputation asks the reputation service about url when a credential
// is configured.
func (p *Pipeline) checkReputation(ctx context.Context, url string) error {
	if p.reputation == nil {
		return nil
	}
	apiKey, err := state.APIKey(ctx, p.store)
	if err != nil {
		return err
	}
	if apiKey == "" {
		p.logger.Info("reputation check skipped: no API key configured",
			zap.String("url", url))
		return nil
	}

	unsafe, err := p.reputation.Check(ctx, apiKey, url)
	if err != nil {
		return err
	}
	if unsafe {
		p.notifier.Notify(unsafeURLAlert(url))
	}
	return nil
}

// checkPhishing emits at most one alert: the first matching pattern wins.
func (p *Pipeline) checkPhishing(url string) error {
	host, ok := policy.Hostname(url)
	if !ok {
		return nil
	}
	if match, found := p.phishing.FirstMatch(host); found {
		p.logger.Info("phishing pattern matched",
			zap.String("host", host),
			zap.String("brand", match.Brand))
		p.notifier.Notify(phishingAlert(url, match.Brand))
	}
	return nil
}

func (p *Pipeline) checkTransport(url string) error {
	if policy.IsInsecure(url) {
		p.notifier.Notify(insecureTransportAlert(url))
	}
	return nil
}

// trackTime counts one visit for the URL's hostname. Best effort.
func (p *Pipeline) trackTime(ctx context.Context, url string) error {
	host, ok := policy.Hostname(url)
	if !ok {
		return errNoHost
	}
	return state.IncrementTimeSpent(ctx, p.store, host)
}

// checkCookies alerts when the browser reported more cookies for the page's
// domain than the configured threshold.
func (p *Pipeline) checkCookies(ctx context.Context, nav domain.Navigation) error {
	if nav.CookieCount == nil {
		return nil
	}
	threshold, err := state.CookieThreshold(ctx, p.store)
	if err != nil {
		p.logger.Debug("using default cookie threshold", zap.Error(err))
	}
	if *nav.CookieCount > threshold {
		p.notifier.Notify(trackingCookiesAlert(nav.URL))
	}
	return nil
}

// checkFocusWarning warns about plaintext pages visited during a session.
func (p *Pipeline) checkFocusWarning(ctx context.Context, url string) {
	if !policy.IsInsecure(url) {
		return
	}
	active, err := state.FocusActive(ctx, p.store)
	if err != nil {
		p.logger.Warn("failed to read focus flag", zap.Error(err))
		return
	}
	if active {
		p.notifier.Notify(focusWarningAlert(url))
	}
}
