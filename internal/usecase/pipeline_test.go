package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/infra"
	"github.com/eliteGoblin/focusd/focusguard/internal/policy"
	"github.com/eliteGoblin/focusd/focusguard/internal/state"
)

func newTestPipeline(t *testing.T, rep domain.ReputationChecker) (*Pipeline, *infra.MemoryStore, *recordingNotifier) {
	t.Helper()
	store := infra.NewMemoryStore()
	require.NoError(t, state.Install(context.Background(), store))
	notifier := &recordingNotifier{}
	p := NewPipeline(store, rep, notifier, policy.NewBackgroundFamily(), zap.NewNop())
	return p, store, notifier
}

func intPtr(n int) *int { return &n }

func TestPipeline_Transport(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"http://example.com/", 1},
		{"HTTP://example.com/", 1},
		{"https://example.com/", 0},
		{"ftp://example.com/", 0},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			p, _, notifier := newTestPipeline(t, nil)
			p.Run(context.Background(), domain.Navigation{URL: tt.url})
			assert.Equal(t, tt.want, notifier.count(domain.AlertInsecureTransport))
		})
	}
}

func TestPipeline_Phishing(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		want  int
		brand string
	}{
		{"digit lookalike", "https://paypa1.com/login", 1, "PayPal"},
		{"zero for o", "https://faceb0ok.com/", 0, ""},
		{"double zero", "https://facebo0k.com/", 1, "Facebook"},
		{"case insensitive", "https://GOOG1E.com/", 1, "Google"},
		{"subdomain", "https://login.micr0soft.com.evil.net/", 1, "Microsoft"},
		{"genuine domain", "https://www.google.com/", 0, ""},
		{"unrelated", "https://golang.org/", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, notifier := newTestPipeline(t, nil)
			p.Run(context.Background(), domain.Navigation{URL: tt.url})

			assert.Equal(t, tt.want, notifier.count(domain.AlertPhishing))
			if tt.brand != "" {
				for _, a := range notifier.all() {
					if a.Kind == domain.AlertPhishing {
						assert.Contains(t, a.Message, tt.brand)
					}
				}
			}
		})
	}
}

func TestPipeline_ReputationSkippedWithoutKey(t *testing.T) {
	rep := &mockReputation{unsafe: true}
	p, _, notifier := newTestPipeline(t, rep)

	p.Run(context.Background(), domain.Navigation{URL: "https://malware.example/"})

	assert.Equal(t, int32(0), rep.calls.Load())
	assert.Equal(t, 0, notifier.count(domain.AlertUnsafeURL))
}

func TestPipeline_ReputationUnsafe(t *testing.T) {
	rep := &mockReputation{unsafe: true}
	p, store, notifier := newTestPipeline(t, rep)
	require.NoError(t, state.SetAPIKey(context.Background(), store, "k-123"))

	p.Run(context.Background(), domain.Navigation{URL: "https://malware.example/"})

	assert.Equal(t, int32(1), rep.calls.Load())
	assert.Equal(t, "k-123", rep.lastKey.Load())
	assert.Equal(t, 1, notifier.count(domain.AlertUnsafeURL))
}

func TestPipeline_ReputationSafe(t *testing.T) {
	rep := &mockReputation{}
	p, store, notifier := newTestPipeline(t, rep)
	require.NoError(t, state.SetAPIKey(context.Background(), store, "k-123"))

	p.Run(context.Background(), domain.Navigation{URL: "https://golang.org/"})

	assert.Equal(t, int32(1), rep.calls.Load())
	assert.Empty(t, notifier.all())
}

func TestPipeline_FailingCheckDoesNotSuppressOthers(t *testing.T) {
	tests := []struct {
		name string
		rep  *mockReputation
	}{
		{"error", &mockReputation{err: errors.New("503 from service")}},
		{"panic", &mockReputation{panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store, notifier := newTestPipeline(t, tt.rep)
			ctx := context.Background()
			require.NoError(t, state.SetAPIKey(ctx, store, "k"))

			p.Run(ctx, domain.Navigation{URL: "http://paypa1.com/"})

			assert.Equal(t, 1, notifier.count(domain.AlertInsecureTransport))
			assert.Equal(t, 1, notifier.count(domain.AlertPhishing))
			assert.Equal(t, 0, notifier.count(domain.AlertUnsafeURL))

			spent, err := state.TimeSpent(ctx, store)
			require.NoError(t, err)
			assert.Equal(t, 1, spent["paypa1.com"])
		})
	}
}

func TestPipeline_TimeTracking(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	p.Run(ctx, domain.Navigation{URL: "https://go.dev/doc"})
	p.Run(ctx, domain.Navigation{URL: "https://go.dev/blog"})
	p.Run(ctx, domain.Navigation{URL: "https://pkg.go.dev/"})

	spent, err := state.TimeSpent(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"go.dev": 2, "pkg.go.dev": 1}, spent)
}

func TestPipeline_TimeTrackingConcurrent(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx, domain.Navigation{URL: "https://example.org/"})
		}()
	}
	wg.Wait()

	spent, err := state.TimeSpent(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, n, spent["example.org"])
}

func TestPipeline_Cookies(t *testing.T) {
	tests := []struct {
		name      string
		count     *int
		threshold int
		want      int
	}{
		{"not reported", nil, 0, 0},
		{"at default threshold", intPtr(10), 0, 0},
		{"above default threshold", intPtr(11), 0, 1},
		{"custom threshold", intPtr(4), 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store, notifier := newTestPipeline(t, nil)
			ctx := context.Background()
			if tt.threshold > 0 {
				rec, err := state.Encode(map[string]any{state.KeyCookieThreshold: tt.threshold})
				require.NoError(t, err)
				require.NoError(t, store.Set(ctx, rec))
			}

			p.Run(ctx, domain.Navigation{URL: "https://shop.example/", CookieCount: tt.count})

			assert.Equal(t, tt.want, notifier.count(domain.AlertTrackingCookies))
		})
	}
}

func TestPipeline_FocusWarning(t *testing.T) {
	tests := []struct {
		name   string
		active bool
		url    string
		want   int
	}{
		{"http during session", true, "http://example.com/", 1},
		{"https during session", true, "https://example.com/", 0},
		{"http outside session", false, "http://example.com/", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store, notifier := newTestPipeline(t, nil)
			ctx := context.Background()
			require.NoError(t, state.SetFocus(ctx, store, tt.active, tt.active))

			p.Run(ctx, domain.Navigation{URL: tt.url})

			assert.Equal(t, tt.want, notifier.count(domain.AlertFocusWarning))
		})
	}
}

func TestPipeline_BrokenStore(t *testing.T) {
	rep := &mockReputation{unsafe: true}
	notifier := &recordingNotifier{}
	p := NewPipeline(failingStore{}, rep, notifier, policy.NewBackgroundFamily(), zap.NewNop())

	p.Run(context.Background(), domain.Navigation{URL: "http://amaz0n.com/", CookieCount: intPtr(50)})

	assert.ElementsMatch(t, []domain.AlertKind{
		domain.AlertInsecureTransport,
		domain.AlertPhishing,
		domain.AlertTrackingCookies,
	}, notifier.kinds())
	assert.Equal(t, int32(0), rep.calls.Load())
}
