// Package api implements the monitor's local control API using chi. The
// browser shim reports navigations and offers requests for interception;
// page probes post their reports; the CLI and dashboards read status and
// stream alerts.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/state"
)

// NavigationRunner runs the security pipeline for one navigation.
type NavigationRunner interface {
	Run(ctx context.Context, nav domain.Navigation)
}

// MessageHandler answers probe messages.
type MessageHandler interface {
	Handle(ctx context.Context, msg domain.Message) (*domain.Response, error)
}

// SessionView exposes the in-process focus session.
type SessionView interface {
	Active() bool
	BlockedCount() int
}

// Deps are the collaborators the handlers need.
type Deps struct {
	// BaseContext bounds background pipeline runs; canceled on shutdown.
	BaseContext context.Context

	Store       domain.Store
	Interceptor domain.RequestInterceptor
	Pipeline    NavigationRunner
	Reports     MessageHandler
	Session     SessionView
	Alerts      *Broker
	Logger      *zap.Logger

	PID       int
	Version   string
	StartedAt time.Time
}

type navigationResponse struct {
	Accepted bool `json:"accepted"`
}

type decisionResponse struct {
	Decision domain.Decision `json:"decision"`
}

// Handler holds API route handlers.
type Handler struct {
	deps     Deps
	inflight sync.WaitGroup
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{deps: deps}
}

// Wait blocks until every dispatched pipeline run has finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

// Navigation handles POST /v1/navigations. Only top-level frames are
// processed; the pipeline runs after the response is written.
func (h *Handler) Navigation(w http.ResponseWriter, r *http.Request) {
	var nav domain.Navigation
	if err := decodeJSON(r, &nav); err != nil {
		writeJSON(w, h.deps.Logger, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if strings.TrimSpace(nav.URL) == "" {
		writeJSON(w, h.deps.Logger, http.StatusBadRequest, errorBody("url is required"))
		return
	}
	if !nav.IsTopLevel() {
		writeJSON(w, h.deps.Logger, http.StatusAccepted, navigationResponse{Accepted: false})
		return
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.deps.Pipeline.Run(h.deps.BaseContext, nav)
	}()

	writeJSON(w, h.deps.Logger, http.StatusAccepted, navigationResponse{Accepted: true})
}

// Request handles POST /v1/requests: the blocking decision for an outbound
// request.
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	var req domain.RequestDetails
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, h.deps.Logger, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, h.deps.Logger, http.StatusOK, decisionResponse{Decision: h.deps.Interceptor.Decide(req)})
}

// Message handles POST /v1/messages from page probes.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	if err := decodeJSON(r, &msg); err != nil {
		writeJSON(w, h.deps.Logger, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	resp, err := h.deps.Reports.Handle(r.Context(), msg)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownMessage) {
			h.deps.Logger.Warn("rejected probe message", zap.String("type", string(msg.Type)))
			writeJSON(w, h.deps.Logger, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		h.deps.Logger.Error("probe message failed", zap.Error(err))
		writeJSON(w, h.deps.Logger, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, h.deps.Logger, http.StatusOK, resp)
}

// Status handles GET /v1/status. A store read failure still answers with
// the in-process view.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	focus, err := state.Focus(r.Context(), h.deps.Store)
	if err != nil {
		h.deps.Logger.Warn("failed to read focus state for status", zap.Error(err))
	}

	resp := domain.MonitorStatus{
		PID:           h.deps.PID,
		Version:       h.deps.Version,
		StartedAt:     h.deps.StartedAt,
		FocusMode:     focus.Active,
		TimerRunning:  focus.TimerRunning,
		TimerDuration: focus.DurationSeconds,
		Filters:       h.deps.Interceptor.Count(),
	}
	if h.deps.Session != nil {
		resp.SessionActive = h.deps.Session.Active()
		resp.BlockedEntries = h.deps.Session.BlockedCount()
	}
	if h.deps.Alerts != nil {
		resp.AlertClients = h.deps.Alerts.ClientCount()
	}
	writeJSON(w, h.deps.Logger, http.StatusOK, resp)
}
