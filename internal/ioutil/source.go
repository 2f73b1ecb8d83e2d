// Package ioutil realizes the child supervisor's abstract "byte-chunk
// source with stream label": a pipe-reader pair or a single PTY reader, both
// behind the same Source interface so line framing is shared.
package ioutil

import (
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"

	"github.com/bbatchelder/tap/internal/ring"
)

// StreamReader pairs a raw byte reader with the stream label its bytes
// should be tagged with.
type StreamReader struct {
	Stream ring.Stream
	Reader io.Reader
}

// Source is a started child process plus its readable output streams.
type Source interface {
	// Streams returns one reader per labelled output stream. Pipe mode
	// yields two (stdout, stderr); PTY mode yields one (combined).
	Streams() []StreamReader
	// Pid returns the child's process id.
	Pid() int
	// Wait blocks until the child exits and returns its error (nil on a
	// clean exit), matching exec.Cmd.Wait.
	Wait() error
	// Close releases any OS resources the source owns (e.g. the PTY fd).
	// Safe to call after Wait.
	Close() error
}

// pipeSource wraps stdout/stderr pipes from a plain exec.Cmd.
type pipeSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// StartPipe starts cmd with separate stdout/stderr pipes, placing the child
// in its own process group so a single signal can reach its descendants.
func StartPipe(cmd *exec.Cmd) (Source, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &pipeSource{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (p *pipeSource) Streams() []StreamReader {
	return []StreamReader{
		{Stream: ring.Stdout, Reader: p.stdout},
		{Stream: ring.Stderr, Reader: p.stderr},
	}
}

func (p *pipeSource) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *pipeSource) Wait() error { return p.cmd.Wait() }
func (p *pipeSource) Close() error {
	p.stdout.Close()
	p.stderr.Close()
	return nil
}

// ptySource wraps a single pseudo-terminal producing combined output.
type ptySource struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

// StartPTY spawns cmd attached to a pseudo-terminal with the given window
// size, yielding one combined byte stream.
func StartPTY(cmd *exec.Cmd, cols, rows uint16) (Source, error) {
	setProcessGroup(cmd)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}
	return &ptySource{cmd: cmd, ptmx: ptmx}, nil
}

func (p *ptySource) Streams() []StreamReader {
	return []StreamReader{{Stream: ring.Combined, Reader: p.ptmx}}
}

func (p *ptySource) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *ptySource) Wait() error { return p.cmd.Wait() }
func (p *ptySource) Close() error {
	return p.ptmx.Close()
}

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
