package control

import "github.com/bbatchelder/tap/internal/ring"

// RunnerStatus is the GET /v1/status response body.
type RunnerStatus struct {
	Name      string      `json:"name"`
	RunnerPID int         `json:"runner_pid"`
	ChildPID  *int        `json:"child_pid"`
	ChildState string     `json:"child_state"`
	StartedAt int64       `json:"started_at"`
	UptimeMS  int64       `json:"uptime_ms"`
	PTY       bool        `json:"pty"`
	Forward   bool        `json:"forward"`
	Buffer    ring.Stats  `json:"buffer"`
	LastExit  *LastExit   `json:"last_exit"`
}

// LastExit reports the most recent child exit, if any.
type LastExit struct {
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

// ObserveResponse is the GET /v1/logs response body.
type ObserveResponse struct {
	Name       string         `json:"name"`
	CursorNext uint64         `json:"cursor_next"`
	Truncated  bool           `json:"truncated"`
	Dropped    bool           `json:"dropped"`
	Events     []ring.LogEvent `json:"events"`
	MatchCount int            `json:"match_count"`
}

// ReadySpec describes the readiness pattern a restart call should wait for.
type ReadySpec struct {
	Type          string `json:"type"` // "substring" or "regex"
	Pattern       string `json:"pattern"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
}

// RestartRequest is the POST /v1/restart request body.
type RestartRequest struct {
	GraceMS    *int       `json:"grace_ms,omitempty"`
	Ready      *ReadySpec `json:"ready,omitempty"`
	TimeoutMS  *int       `json:"timeout_ms,omitempty"`
	ClearLogs  bool       `json:"clear_logs,omitempty"`
}

// RestartResponse is the POST /v1/restart response body.
type RestartResponse struct {
	Restarted  bool    `json:"restarted"`
	Ready      bool    `json:"ready"`
	ReadyMatch *string `json:"ready_match,omitempty"`
	Reason     *string `json:"reason,omitempty"`
	Snippet    []string `json:"snippet,omitempty"`
	PID        *int    `json:"pid,omitempty"`
	CursorNext uint64  `json:"cursor_next"`
}

// StopRequest is the POST /v1/stop request body.
type StopRequest struct {
	GraceMS *int `json:"grace_ms,omitempty"`
}

// StopResponse is the POST /v1/stop response body.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// ErrorBody is the shape of every non-2xx JSON response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error codes used across the control plane, per spec.md §6/§7.
const (
	CodeNoRunner      = "no_runner"
	CodeRunnerExists  = "runner_exists"
	CodeRequestTimeout = "request_timeout"
	CodeNotFound      = "not_found"
	CodeInternal      = "internal_error"
	CodeBadRequest    = "bad_request"
)
