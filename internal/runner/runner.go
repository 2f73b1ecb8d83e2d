// Package runner wires the ring buffer, child supervisor, and control
// server into the single process that is one service's runner daemon.
package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/bbatchelder/tap/internal/control"
	"github.com/bbatchelder/tap/internal/ring"
	"github.com/bbatchelder/tap/internal/supervisor"
)

// Config describes everything needed to start one runner.
type Config struct {
	Name     string
	TapDir   string // directory to hold the socket; created 0700
	BaseName string // socket file name stem; defaults to the whole Name, prefix included

	Command []string
	Cwd     string
	Env     []string
	UsePTY  bool
	Forward bool

	MaxLines int
	MaxBytes int
}

// SocketPath is <tap_dir>/<BaseName>.sock, or <tap_dir>/<Name>.sock when
// BaseName is empty. A "prefix:" part of Name is not split off.
func (c Config) SocketPath() string {
	base := c.BaseName
	if base == "" {
		base = c.Name
	}
	return filepath.Join(c.TapDir, base+".sock")
}

// Run starts the runner and blocks until it exits cleanly (via /v1/stop or
// SIGINT/SIGTERM) or a fatal error occurs. It returns nil on clean shutdown.
func Run(cfg Config) error {
	if err := os.MkdirAll(cfg.TapDir, 0700); err != nil {
		return fmt.Errorf("create tap dir: %w", err)
	}

	buf := ring.New(cfg.MaxLines, cfg.MaxBytes)
	sup := supervisor.New(buf, supervisor.Config{
		Command: cfg.Command,
		Cwd:     cfg.Cwd,
		Env:     cfg.Env,
		UsePTY:  cfg.UsePTY,
	})

	srv := &control.Server{
		Name:       cfg.Name,
		SocketPath: cfg.SocketPath(),
		Buf:        buf,
		Sup:        sup,
		PTY:        cfg.UsePTY,
		Forward:    cfg.Forward,
		StartedAt:  time.Now(),
		RunnerPID:  os.Getpid(),
	}

	if err := srv.Bind(); err != nil {
		return err
	}

	if err := sup.Spawn(); err != nil {
		os.Remove(cfg.SocketPath())
		return fmt.Errorf("spawn child: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var shutdownOnce sync.Once
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			shutdownOnce.Do(func() {
				log.Printf("runner: received shutdown signal")
				cancel()
			})
		}
	}()

	log.Printf("runner: %s started pid=%d socket=%s", cfg.Name, os.Getpid(), cfg.SocketPath())
	return srv.Serve(ctx)
}
