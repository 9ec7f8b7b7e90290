// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// DefaultFocusDurationSeconds is the focus session length used when none is configured.
const DefaultFocusDurationSeconds = 25 * 60

// Alarm names. Focus and deadline timers must never collide.
const (
	FocusAlarmName    = "focusTimer"
	DeadlineAlarmName = "checkDeadlines"
)

var (
	// ErrUnknownMessage is returned for inter-context messages with an unrecognised type.
	ErrUnknownMessage = errors.New("unknown message type")
)

// FocusState is the persisted view of the focus session flags.
type FocusState struct {
	Active          bool `json:"focusMode"`
	TimerRunning    bool `json:"timerRunning"`
	DurationSeconds int  `json:"timerDuration"`
}

// Duration returns the configured session length, falling back to the default.
func (s FocusState) Duration() time.Duration {
	if s.DurationSeconds <= 0 {
		return DefaultFocusDurationSeconds * time.Second
	}
	return time.Duration(s.DurationSeconds) * time.Second
}

// AlertKind classifies a user-facing warning.
type AlertKind string

const (
	AlertUnsafeURL           AlertKind = "unsafe-url"
	AlertPhishing            AlertKind = "phishing"
	AlertInsecureTransport   AlertKind = "insecure-transport"
	AlertTrackingCookies     AlertKind = "tracking-cookies"
	AlertDeadlineApproaching AlertKind = "deadline-approaching"
	AlertFocusWarning        AlertKind = "focus-warning"
	AlertSessionComplete     AlertKind = "session-complete"
	AlertSensitiveForm       AlertKind = "sensitive-form"
)

// Alert is one emitted warning. Alerts are never persisted.
type Alert struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Navigation is a completed navigation reported by the browser.
type Navigation struct {
	URL     string `json:"url"`
	FrameID int    `json:"frameId"`
	TabID   int    `json:"tabId,omitempty"`
	// CookieCount is the number of cookies the browser holds for the page's
	// domain; nil when the shim did not report it.
	CookieCount *int `json:"cookieCount,omitempty"`
}

// IsTopLevel reports whether the navigation happened in the outermost frame.
func (n Navigation) IsTopLevel() bool {
	return n.FrameID == 0
}

// RequestDetails describes an outbound request offered for interception.
type RequestDetails struct {
	URL string `json:"url"`
}

// Decision is the verdict of a request filter.
type Decision string

const (
	DecisionAllow  Decision = "allow"
	DecisionCancel Decision = "cancel"
)

// MessageType names an inter-context message.
type MessageType string

const (
	MsgHTTPFormWarning       MessageType = "httpFormWarning"
	MsgSuspiciousFormWarning MessageType = "suspiciousFormWarning"
	MsgPhishingWarning       MessageType = "phishingWarning"
	MsgCookieScriptDetected  MessageType = "cookieScriptDetected"
	MsgCheckSecurity         MessageType = "checkSecurity"
	MsgCheckFocusMode        MessageType = "checkFocusMode"
)

// FormField is a form element summary carried in probe reports.
type FormField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Message is a one-shot message between execution contexts.
type Message struct {
	Type     MessageType `json:"type"`
	URL      string      `json:"url,omitempty"`
	Elements []FormField `json:"elements,omitempty"`
}

// SecurityInfo answers a checkSecurity query from the page probe.
type SecurityInfo struct {
	IsHTTP            bool `json:"isHttp"`
	HasForms          bool `json:"hasForms"`
	HasPasswordFields bool `json:"hasPasswordFields"`
}

// Response is the optional reply to a Message.
type Response struct {
	OK       bool          `json:"ok"`
	Security *SecurityInfo `json:"security,omitempty"`
	Blocked  bool          `json:"blocked,omitempty"`
}

// Record is a partial view of the shared store: key to raw JSON value.
type Record map[string]json.RawMessage

// Change is the before/after value of one key.
type Change struct {
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`
}

// Changes is the delta delivered to store listeners.
type Changes map[string]Change

// Schedule configures an alarm. Delay is the first firing; a non-zero
// Period makes the alarm repeat.
type Schedule struct {
	Delay  time.Duration
	Period time.Duration
}

// Daemon represents a running monitor process.
type Daemon struct {
	PID        int
	StartedAt  time.Time
	AppVersion string
}

// RegistryEntry is the persisted monitor registration used by status and start.
type RegistryEntry struct {
	Version       int    `json:"version"`
	MonitorPID    int    `json:"monitor_pid"`
	ListenAddr    string `json:"listen_addr"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	AppVersion    string `json:"app_version,omitempty"`
}

// MonitorStatus is the monitor's self-report served to the CLI.
type MonitorStatus struct {
	PID            int       `json:"pid"`
	Version        string    `json:"version"`
	StartedAt      time.Time `json:"startedAt"`
	FocusMode      bool      `json:"focusMode"`
	TimerRunning   bool      `json:"timerRunning"`
	TimerDuration  int       `json:"timerDuration"`
	SessionActive  bool      `json:"sessionActive"`
	BlockedEntries int       `json:"blockedEntries"`
	Filters        int       `json:"filters"`
	AlertClients   int       `json:"alertClients"`
}
