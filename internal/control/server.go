// Package control implements the request/response state machine served over
// a Unix-domain socket: status, log queries, restart-with-readiness, and
// stop-and-exit, plus liveness-based stale-socket recovery at bind time.
package control

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bbatchelder/tap/internal/ring"
	"github.com/bbatchelder/tap/internal/supervisor"
)

const (
	maxBodyBytes    = 1 << 20 // 1 MiB
	probeTimeout    = 500 * time.Millisecond
	defaultGraceMS  = 2000
	defaultRestartTimeoutMS = 20000
)

// Server is the control-plane daemon for one service: it owns the listening
// endpoint and borrows the ring buffer and supervisor for the runner's
// lifetime.
type Server struct {
	Name       string
	SocketPath string
	Buf        *ring.Buffer
	Sup        *supervisor.Supervisor
	PTY        bool
	Forward    bool
	StartedAt  time.Time
	RunnerPID  int

	mu          sync.Mutex
	lastExit    *LastExit
	ln          net.Listener
	httpSrv     *http.Server
	exitOnce    sync.Once
	exitAfter   func() // not called; handleStop exits via exitOnceStopped
	shutdownCtx context.Context
}

// waitContext derives a context from reqCtx that is also cancelled when the
// runner's own shutdown context (set in Serve) is cancelled, so a pending
// restart readiness wait is cut short by SIGINT/SIGTERM instead of running
// until its timeout regardless of the runner shutting down around it.
func (s *Server) waitContext(reqCtx context.Context) (context.Context, func()) {
	s.mu.Lock()
	shutdownCtx := s.shutdownCtx
	s.mu.Unlock()
	if shutdownCtx == nil {
		return reqCtx, func() {}
	}

	ctx, cancel := context.WithCancel(reqCtx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-shutdownCtx.Done():
			cancel()
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancel()
	}
}

// Bind performs stale-socket recovery (probe a responsive runner at the
// existing path; if none, unlink and bind) and opens the listener. It does
// not start serving.
func (s *Server) Bind() error {
	if _, err := os.Stat(s.SocketPath); err == nil {
		if s.probeAlive() {
			return &controlError{Code: CodeRunnerExists, Message: fmt.Sprintf(
				"a runner already appears to be listening on %s; inspect it with 'tap status' or stop it first", s.SocketPath)}
		}
		os.Remove(s.SocketPath)
	}

	ln, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", s.SocketPath, err)
	}
	s.ln = ln
	return nil
}

// probeAlive dials the existing socket and issues a short-timeout
// GET /v1/status. It returns true only if that request succeeds, meaning a
// live runner owns the socket.
func (s *Server) probeAlive() bool {
	client := &http.Client{
		Timeout: probeTimeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				d := net.Dialer{Timeout: probeTimeout}
				return d.DialContext(ctx, "unix", s.SocketPath)
			},
		},
	}
	req, err := http.NewRequest(http.MethodGet, "http://tap/v1/status", nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-Tap-Probe", uuid.NewString())
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Serve runs the HTTP server until ctx is cancelled (best-effort graceful
// runner shutdown, e.g. SIGINT/SIGTERM) or the listener errors. It does not
// return on a client-initiated /v1/stop; that path calls os.Exit directly
// after flushing the response, per spec.md §4.3.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.shutdownCtx = ctx
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.httpSrv = &http.Server{Handler: http.MaxBytesHandler(mux, maxBodyBytes)}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(s.ln)
	}()

	log.Printf("control: serving %s on %s", s.Name, s.SocketPath)

	select {
	case <-ctx.Done():
		s.Sup.Stop(2 * time.Second)
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutCtx)
		os.Remove(s.SocketPath)
		return nil
	case err := <-errCh:
		os.Remove(s.SocketPath)
		return err
	}
}

// controlError carries a stable error code through to the HTTP response.
type controlError struct {
	Code    string
	Message string
}

func (e *controlError) Error() string { return e.Message }
