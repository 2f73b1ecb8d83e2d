package ioutil

import (
	"io"
	"os/exec"
	"testing"

	"github.com/bbatchelder/tap/internal/ring"
)

func TestStartPipeSeparatesStreams(t *testing.T) {
	cmd := exec.Command("sh", "-c", "echo out; echo err >&2")
	src, err := StartPipe(cmd)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	streams := src.Streams()
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(streams))
	}

	got := map[ring.Stream]string{}
	for _, sr := range streams {
		data, err := io.ReadAll(sr.Reader)
		if err != nil {
			t.Fatal(err)
		}
		got[sr.Stream] = string(data)
	}
	if got[ring.Stdout] != "out\n" {
		t.Fatalf("stdout = %q", got[ring.Stdout])
	}
	if got[ring.Stderr] != "err\n" {
		t.Fatalf("stderr = %q", got[ring.Stderr])
	}

	if src.Pid() <= 0 {
		t.Fatal("expected a positive pid")
	}
	if err := src.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestStartPipeSetsProcessGroup(t *testing.T) {
	cmd := exec.Command("sh", "-c", "true")
	if _, err := StartPipe(cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatal("expected Setpgid to be set")
	}
	cmd.Wait()
}
