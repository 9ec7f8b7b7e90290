package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/infra"
	"github.com/eliteGoblin/focusd/focusguard/internal/state"
	"github.com/eliteGoblin/focusd/focusguard/internal/usecase"
)

// mockRunner implements NavigationRunner for testing
type mockRunner struct {
	mu   sync.Mutex
	navs []domain.Navigation
}

func (m *mockRunner) Run(ctx context.Context, nav domain.Navigation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navs = append(m.navs, nav)
}

func (m *mockRunner) urls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, n := range m.navs {
		out = append(out, n.URL)
	}
	return out
}

// mockSession implements SessionView for testing
type mockSession struct {
	active  bool
	blocked int
}

func (m mockSession) Active() bool      { return m.active }
func (m mockSession) BlockedCount() int { return m.blocked }

type testEnv struct {
	handler     *Handler
	router      http.Handler
	store       *infra.MemoryStore
	interceptor *infra.InterceptorChain
	runner      *mockRunner
	broker      *Broker
	alerts      *alertSink
}

// alertSink records alerts raised by the report handler
type alertSink struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (s *alertSink) Notify(a domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *alertSink) all() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Alert(nil), s.alerts...)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := infra.NewMemoryStore()
	require.NoError(t, state.Install(context.Background(), store))

	env := &testEnv{
		store:       store,
		interceptor: infra.NewInterceptorChain(),
		runner:      &mockRunner{},
		broker:      NewBroker(),
		alerts:      &alertSink{},
	}
	t.Cleanup(env.broker.Close)

	env.handler = NewHandler(Deps{
		Store:       store,
		Interceptor: env.interceptor,
		Pipeline:    env.runner,
		Reports:     usecase.NewReportHandler(env.alerts, zap.NewNop()),
		Session:     mockSession{active: true, blocked: 3},
		Alerts:      env.broker,
		Logger:      zap.NewNop(),
		PID:         4242,
		Version:     "0.3.0",
		StartedAt:   time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	})
	env.router = NewRouter(env.handler)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestNavigation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantRun    []string
	}{
		{
			name:       "top level frame runs pipeline",
			body:       `{"url":"http://paypa1.com/","frameId":0}`,
			wantStatus: http.StatusAccepted,
			wantRun:    []string{"http://paypa1.com/"},
		},
		{
			name:       "frame id omitted means top level",
			body:       `{"url":"https://go.dev/"}`,
			wantStatus: http.StatusAccepted,
			wantRun:    []string{"https://go.dev/"},
		},
		{
			name:       "sub frame ignored",
			body:       `{"url":"https://ads.example/","frameId":7}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "missing url",
			body:       `{"frameId":0}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{"url":`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(t, http.MethodPost, "/v1/navigations", tt.body)
			env.handler.Wait()

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantRun, env.runner.urls())
		})
	}
}

func TestNavigation_CookieCountForwarded(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/navigations", `{"url":"https://shop.example/","frameId":0,"cookieCount":12}`)
	env.handler.Wait()

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, env.runner.navs, 1)
	require.NotNil(t, env.runner.navs[0].CookieCount)
	assert.Equal(t, 12, *env.runner.navs[0].CookieCount)
}

func TestRequestDecision(t *testing.T) {
	env := newTestEnv(t)
	env.interceptor.Register(func(req domain.RequestDetails) domain.Decision {
		if strings.Contains(req.URL, "reddit.com") {
			return domain.DecisionCancel
		}
		return domain.DecisionAllow
	})

	tests := []struct {
		url  string
		want domain.Decision
	}{
		{"https://www.reddit.com/", domain.DecisionCancel},
		{"https://go.dev/", domain.DecisionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/requests", `{"url":"`+tt.url+`"}`)
			require.Equal(t, http.StatusOK, rec.Code)

			var body decisionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Decision)
		})
	}
}

func TestMessage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/messages",
		`{"type":"suspiciousFormWarning","url":"http://shop.example/","elements":[{"name":"pw","type":"password"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)

	alerts := env.alerts.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertSensitiveForm, alerts[0].Kind)
}

func TestMessage_UnknownType(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/messages", `{"type":"selfDestruct"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown message type")
	assert.Empty(t, env.alerts.all())
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, state.SetTimerDuration(ctx, env.store, 1200))
	require.NoError(t, state.SetFocus(ctx, env.store, true, true))
	env.interceptor.Register(func(domain.RequestDetails) domain.Decision { return domain.DecisionAllow })

	rec := env.do(t, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.MonitorStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 4242, got.PID)
	assert.Equal(t, "0.3.0", got.Version)
	assert.True(t, got.FocusMode)
	assert.True(t, got.TimerRunning)
	assert.Equal(t, 1200, got.TimerDuration)
	assert.True(t, got.SessionActive)
	assert.Equal(t, 3, got.BlockedEntries)
	assert.Equal(t, 1, got.Filters)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAlertStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/alerts", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return env.broker.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.broker.Notify(domain.Alert{ID: "alert-1", Kind: domain.AlertPhishing, Title: "Phishing Warning"})

	reader := bufio.NewReader(resp.Body)
	var frame bytes.Buffer
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			break
		}
		frame.WriteString(line)
	}

	assert.Contains(t, frame.String(), "id: alert-1\n")
	assert.Contains(t, frame.String(), "event: alert\n")
	assert.Contains(t, frame.String(), `"kind":"phishing"`)
}

func TestBroker_CloseDisconnectsClients(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	assert.Equal(t, 1, b.ClientCount())

	b.Close()
	b.Close()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.ClientCount())
	assert.NotPanics(t, func() { b.Notify(domain.Alert{ID: "late"}) })

	closed := b.Subscribe()
	_, open = <-closed
	assert.False(t, open)
}
