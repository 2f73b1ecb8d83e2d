package control

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/bbatchelder/tap/internal/ring"
	"github.com/bbatchelder/tap/internal/validate"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/logs", s.handleLogs)
	mux.HandleFunc("POST /v1/restart", s.handleRestart)
	mux.HandleFunc("POST /v1/stop", s.handleStop)
	mux.HandleFunc("/", s.handleNotFound)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	child := s.Sup.State()
	stats := s.Buf.Stats()

	s.mu.Lock()
	lastExit := s.lastExit
	if lastExit == nil && child.State == "exited" {
		lastExit = &LastExit{Code: child.ExitCode, Signal: child.ExitSignal}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, RunnerStatus{
		Name:       s.Name,
		RunnerPID:  s.RunnerPID,
		ChildPID:   child.PID,
		ChildState: string(child.State),
		StartedAt:  s.StartedAt.UnixMilli(),
		UptimeMS:   time.Since(s.StartedAt).Milliseconds(),
		PTY:        s.PTY,
		Forward:    s.Forward,
		Buffer:     stats,
		LastExit:   lastExit,
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := ring.QueryOptions{}

	switch {
	case q.Has("since_cursor"):
		v, err := strconv.ParseUint(q.Get("since_cursor"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid since_cursor")
			return
		}
		opts.SinceCursor = &v
	case q.Has("since_ms"):
		v, err := strconv.ParseInt(q.Get("since_ms"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid since_ms")
			return
		}
		opts.SinceMS = &v
	case q.Has("last"):
		v, err := strconv.Atoi(q.Get("last"))
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid last")
			return
		}
		opts.Last = &v
	default:
		defaultLast := 80
		opts.Last = &defaultLast
	}

	if stream := q.Get("stream"); stream != "" {
		opts.Stream = ring.Stream(stream)
	}
	opts.Grep = q.Get("grep")
	opts.GrepRegex = isTrue(q.Get("regex"))
	opts.GrepInvert = isTrue(q.Get("invert"))
	opts.GrepIgnoreCase = !isTrue(q.Get("case_sensitive"))

	if v := q.Get("max_lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid max_lines")
			return
		}
		opts.MaxLines = n
	}
	if v := q.Get("max_bytes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid max_bytes")
			return
		}
		opts.MaxBytes = n
	}

	res, err := s.Buf.Query(opts)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	events := res.Events
	if events == nil {
		events = []ring.LogEvent{}
	}
	writeJSON(w, http.StatusOK, ObserveResponse{
		Name:       s.Name,
		CursorNext: res.CursorNext,
		Truncated:  res.Truncated,
		Dropped:    res.Dropped,
		Events:     events,
		MatchCount: len(events),
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req RestartRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	grace := time.Duration(defaultGraceMS) * time.Millisecond
	if req.GraceMS != nil {
		grace = time.Duration(*req.GraceMS) * time.Millisecond
	}
	timeout := time.Duration(defaultRestartTimeoutMS) * time.Millisecond
	if req.TimeoutMS != nil {
		timeout = time.Duration(*req.TimeoutMS) * time.Millisecond
	}

	restartCursor := s.Buf.NextSeq()
	s.Buf.InsertMarker("--- restart requested ---")

	s.Sup.Stop(grace)

	if req.ClearLogs {
		s.Buf.Clear()
	}

	// SpawnAndMark inserts the "restarted" marker synchronously, before the
	// new child's output-pump goroutines start, so the marker is guaranteed
	// to precede any output the new child produces (spec.md §5).
	var pid *int
	if err := s.Sup.SpawnAndMark(func(p int) {
		pp := p
		pid = &pp
		s.Buf.InsertMarker(markerText("restarted", pid))
	}); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	if req.Ready == nil {
		writeJSON(w, http.StatusOK, RestartResponse{
			Restarted:  true,
			Ready:      true,
			PID:        pid,
			CursorNext: s.Buf.NextSeq(),
		})
		return
	}

	waitCtx, stopWait := s.waitContext(r.Context())
	defer stopWait()

	result, err := s.Buf.WaitForMatch(waitCtx, req.Ready.Pattern, req.Ready.Type == "regex", req.Ready.CaseSensitive, restartCursor, timeout)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	if result.Matched {
		text := result.MatchText
		writeJSON(w, http.StatusOK, RestartResponse{
			Restarted:  true,
			Ready:      true,
			ReadyMatch: &text,
			PID:        pid,
			CursorNext: s.Buf.NextSeq(),
		})
		return
	}

	reason := "timeout"
	writeJSON(w, http.StatusOK, RestartResponse{
		Restarted:  true,
		Ready:      false,
		Reason:     &reason,
		Snippet:    result.Snippet,
		PID:        pid,
		CursorNext: s.Buf.NextSeq(),
	})
}

func markerText(verb string, pid *int) string {
	if pid == nil {
		return "--- " + verb + " ---"
	}
	return "--- " + verb + " (pid=" + strconv.Itoa(*pid) + ") ---"
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	grace := time.Duration(defaultGraceMS) * time.Millisecond
	if req.GraceMS != nil {
		grace = time.Duration(*req.GraceMS) * time.Millisecond
	}
	s.Sup.Stop(grace)

	writeJSON(w, http.StatusOK, StopResponse{Stopped: true})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	go s.exitOnceStopped()
}

// exitOnceStopped closes the server and unlinks the socket after the stop
// response has had a chance to reach the client, then exits the process.
// Clients must tolerate the resulting connection reset; this is documented
// protocol behavior (spec.md §4.3).
func (s *Server) exitOnceStopped() {
	s.exitOnce.Do(func() {
		time.Sleep(100 * time.Millisecond)
		if s.ln != nil {
			s.ln.Close()
		}
		os.Remove(s.SocketPath)
		log.Printf("control: stopped %s, exiting", s.Name)
		os.Exit(0)
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, CodeNotFound, "no such route: "+r.Method+" "+r.URL.Path)
}

func isTrue(v string) bool { return v == "1" }

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err.Error() == "EOF" {
			return true // empty body, defaults apply
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, err error) {
	if ve, ok := err.(*validate.Error); ok {
		writeError(w, http.StatusBadRequest, ve.Code, ve.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("control: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: code, Message: message})
}
