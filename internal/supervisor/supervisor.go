// Package supervisor owns the lifetime of the one child process a runner
// wraps: spawning it in its own process group, line-framing its output into
// the ring buffer, and performing ordered graceful-then-forceful
// termination.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bbatchelder/tap/internal/ioutil"
	"github.com/bbatchelder/tap/internal/ring"
)

// State is the lifecycle stage of the supervised process.
type State string

const (
	Stopped  State = "stopped"
	Starting State = "starting"
	Running  State = "running"
	Exited   State = "exited"
	Unknown  State = "unknown"
)

const (
	defaultPTYCols = 80
	defaultPTYRows = 24

	reapWait = 100 * time.Millisecond
)

// Config describes how to spawn the child.
type Config struct {
	Command []string
	Cwd     string
	Env     []string // overlaid onto the current process environment
	UsePTY  bool
}

// ChildState is the value summary exposed to status queries.
type ChildState struct {
	PID        *int
	State      State
	ExitCode   *int
	ExitSignal *string
}

// Supervisor owns one child process handle and its per-stream partial-line
// accumulators.
type Supervisor struct {
	buf *ring.Buffer
	cfg Config

	mu       sync.Mutex
	state    State
	pid      *int
	exitCode *int
	exitSig  *string

	source ioutil.Source
	waitCh chan struct{} // closed when the current child has exited
}

// New constructs a supervisor that publishes output into buf. Spawn must be
// called to start a child.
func New(buf *ring.Buffer, cfg Config) *Supervisor {
	return &Supervisor{buf: buf, cfg: cfg, state: Stopped}
}

// State returns a snapshot of the current child state.
func (s *Supervisor) State() ChildState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ChildState{PID: s.pid, State: s.state, ExitCode: s.exitCode, ExitSignal: s.exitSig}
}

// Spawn starts the child. It sets state to Starting, then Running once a pid
// is obtained. Spawn failure sets state to Exited with a synthetic exit code
// of 1 and returns a descriptive error.
func (s *Supervisor) Spawn() error {
	return s.spawn(nil)
}

// SpawnAndMark starts the child exactly like Spawn, but calls onSpawned
// synchronously once the pid is known and the state is Running, before any
// output-pump goroutine is started. Callers use this to insert a ring buffer
// marker (e.g. "restarted (pid=N)") with a hard guarantee that it lands
// strictly before any output the new child produces.
func (s *Supervisor) SpawnAndMark(onSpawned func(pid int)) error {
	return s.spawn(onSpawned)
}

func (s *Supervisor) spawn(onSpawned func(pid int)) error {
	s.mu.Lock()
	s.state = Starting
	s.pid = nil
	s.exitCode = nil
	s.exitSig = nil
	s.mu.Unlock()

	if len(s.cfg.Command) == 0 {
		return s.spawnFailed(fmt.Errorf("no command configured"))
	}

	var cmd *exec.Cmd
	if s.cfg.UsePTY {
		// spec.md §4.2: PTY mode spawns an interactive shell invocation that
		// runs the quoted command, rather than exec'ing the argv directly.
		cmd = exec.Command("sh", "-c", shellQuoteJoin(s.cfg.Command))
	} else {
		cmd = exec.Command(s.cfg.Command[0], s.cfg.Command[1:]...)
	}
	cmd.Dir = s.cfg.Cwd
	cmd.Env = append(os.Environ(), s.cfg.Env...)

	var src ioutil.Source
	var err error
	if s.cfg.UsePTY {
		src, err = ioutil.StartPTY(cmd, defaultPTYCols, defaultPTYRows)
	} else {
		src, err = ioutil.StartPipe(cmd)
	}
	if err != nil {
		return s.spawnFailed(fmt.Errorf("spawn child: %w", err))
	}

	pid := src.Pid()
	s.mu.Lock()
	s.source = src
	s.pid = &pid
	s.state = Running
	s.waitCh = make(chan struct{})
	waitCh := s.waitCh
	s.mu.Unlock()

	log.Printf("supervisor: spawned pid=%d pty=%v command=%v", pid, s.cfg.UsePTY, s.cfg.Command)

	if onSpawned != nil {
		onSpawned(pid)
	}

	var wg sync.WaitGroup
	accumulators := make(map[ring.Stream]*strings.Builder)
	for _, sr := range src.Streams() {
		accumulators[sr.Stream] = &strings.Builder{}
		wg.Add(1)
		go s.pump(sr, accumulators[sr.Stream], &wg)
	}

	go func() {
		wg.Wait()
		waitErr := src.Wait()
		s.onExit(waitErr, accumulators)
		src.Close()
		close(waitCh)
	}()

	return nil
}

// shellQuoteJoin renders args as a single POSIX shell command line, each
// argument single-quoted so the spawned shell sees the same argv boundaries
// as pipe mode would have used directly.
func shellQuoteJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

func (s *Supervisor) spawnFailed(err error) error {
	code := 1
	s.mu.Lock()
	s.state = Exited
	s.exitCode = &code
	s.mu.Unlock()
	log.Printf("supervisor: spawn failed: %v", err)
	return err
}

// pump reads sr.Reader line by line, emitting a line event per \n-terminated
// segment (trimming a trailing \r) and accumulating partial data until the
// next newline or EOF.
func (s *Supervisor) pump(sr ioutil.StreamReader, acc *strings.Builder, wg *sync.WaitGroup) {
	defer wg.Done()
	r := bufio.NewReaderSize(sr.Reader, 64*1024)
	for {
		chunk, err := r.ReadString('\n')
		if len(chunk) > 0 {
			acc.WriteString(chunk)
			if strings.HasSuffix(chunk, "\n") {
				line := strings.TrimSuffix(acc.String(), "\n")
				line = strings.TrimSuffix(line, "\r")
				s.buf.Append(line, sr.Stream)
				acc.Reset()
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("supervisor: read error on %s: %v", sr.Stream, err)
			}
			return
		}
	}
}

func (s *Supervisor) onExit(waitErr error, accumulators map[ring.Stream]*strings.Builder) {
	for stream, acc := range accumulators {
		if acc.Len() > 0 {
			line := strings.TrimSuffix(acc.String(), "\r")
			s.buf.Append(line, stream)
		}
	}

	code, sig := exitDetails(waitErr)

	s.mu.Lock()
	s.exitCode = &code
	s.exitSig = sig
	s.state = Exited
	s.mu.Unlock()

	log.Printf("supervisor: child exited code=%d signal=%v", code, sig)
	s.buf.Append(fmt.Sprintf("--- exited (code=%d) ---", code), ring.Combined)
}

func exitDetails(err error) (code int, signal *string) {
	if err == nil {
		return 0, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 1, nil
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		s := ws.Signal().String()
		signal = &s
	}
	return exitErr.ExitCode(), signal
}

// Stop performs graceful-then-forceful termination: SIGTERM to the process
// group (falling back to the pid alone), racing the child's exit against
// graceMs, then SIGKILL on timeout.
func (s *Supervisor) Stop(grace time.Duration) {
	s.mu.Lock()
	state := s.state
	pid := s.pid
	waitCh := s.waitCh
	s.mu.Unlock()

	if state != Running || pid == nil {
		s.mu.Lock()
		s.state = Stopped
		s.mu.Unlock()
		return
	}

	signalGroupOrPid(*pid, unix.SIGTERM)

	if waitCh != nil {
		select {
		case <-waitCh:
		case <-time.After(grace):
			s.mu.Lock()
			stillRunning := s.state == Running
			s.mu.Unlock()
			if stillRunning {
				signalGroupOrPid(*pid, unix.SIGKILL)
				select {
				case <-waitCh:
				case <-time.After(reapWait):
				}
			}
		}
	}

	s.mu.Lock()
	s.source = nil
	s.pid = nil
	s.state = Stopped
	s.mu.Unlock()
}

// signalGroupOrPid signals the negative pid (the process group) first; if
// that fails because the group is already gone, it is treated as already
// dead. Any other group-signal failure falls back to signalling the pid
// directly.
func signalGroupOrPid(pid int, sig unix.Signal) {
	err := unix.Kill(-pid, sig)
	if err == nil || err == unix.ESRCH {
		return
	}
	unix.Kill(pid, sig)
}
