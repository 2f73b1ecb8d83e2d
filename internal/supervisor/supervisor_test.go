package supervisor

import (
	"testing"
	"time"

	"github.com/bbatchelder/tap/internal/ring"
)

func TestSpawnCapturesLines(t *testing.T) {
	buf := ring.New(0, 0)
	s := New(buf, Config{Command: []string{"sh", "-c", "echo line1; echo line2"}})
	if err := s.Spawn(); err != nil {
		t.Fatal(err)
	}
	waitExited(t, s)

	res, err := buf.Query(ring.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	for _, ev := range res.Events {
		if ev.Text == "line1" || ev.Text == "line2" {
			lines = append(lines, ev.Text)
		}
	}
	if len(lines) != 2 || lines[0] != "line1" || lines[1] != "line2" {
		t.Fatalf("got lines %v", lines)
	}
}

func TestSpawnFlushesPartialLineOnExit(t *testing.T) {
	buf := ring.New(0, 0)
	s := New(buf, Config{Command: []string{"sh", "-c", "printf 'no newline'"}})
	if err := s.Spawn(); err != nil {
		t.Fatal(err)
	}
	waitExited(t, s)

	res, err := buf.Query(ring.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, ev := range res.Events {
		if ev.Text == "no newline" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected flushed partial line, got %+v", res.Events)
	}
}

func TestStopSendsGracefulTermination(t *testing.T) {
	buf := ring.New(0, 0)
	s := New(buf, Config{Command: []string{"sh", "-c", "trap 'exit 0' TERM; sleep 30"}})
	if err := s.Spawn(); err != nil {
		t.Fatal(err)
	}
	waitRunning(t, s)

	s.Stop(2 * time.Second)

	state := s.State()
	if state.State != Stopped {
		t.Fatalf("got state %v, want stopped", state.State)
	}
}

func TestStopForcesKillWhenUnresponsive(t *testing.T) {
	buf := ring.New(0, 0)
	s := New(buf, Config{Command: []string{"sh", "-c", "trap '' TERM; sleep 30"}})
	if err := s.Spawn(); err != nil {
		t.Fatal(err)
	}
	waitRunning(t, s)

	start := time.Now()
	s.Stop(200 * time.Millisecond)
	elapsed := time.Since(start)

	if elapsed > 3*time.Second {
		t.Fatalf("stop took too long: %v", elapsed)
	}
	if s.State().State != Stopped {
		t.Fatalf("got state %v, want stopped", s.State().State)
	}
}

func waitRunning(t *testing.T, s *Supervisor) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State().State == Running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("child never reached running state: %+v", s.State())
}

func waitExited(t *testing.T, s *Supervisor) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State().State == Exited {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("child never exited: %+v", s.State())
}
