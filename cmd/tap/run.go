package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bbatchelder/tap/internal/manifest"
	"github.com/bbatchelder/tap/internal/runner"
)

func runCmd() *cobra.Command {
	var (
		cwd        string
		usePTY     bool
		forward    bool
		maxLines   int
		maxBytes   int
		foreground bool
	)

	cmd := &cobra.Command{
		Use:   "run <name> [-- <command...>]",
		Short: "Start a new supervised service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			var command []string
			dash := cmd.ArgsLenAtDash()
			switch {
			case dash < 0:
				if len(args) != 1 {
					return fmt.Errorf("usage: tap run <name> [-- <command...>]")
				}
				name = args[0]
			case dash == 1:
				name = args[0]
				command = args[dash:]
			default:
				return fmt.Errorf("exactly one service name is expected before --")
			}

			cwdExplicit := cmd.Flags().Changed("cwd")
			base := cwd
			if base == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				base = wd
			}

			if len(command) == 0 || (!cwdExplicit && cwd == "") {
				if mf, mfPath, err := manifest.FindNear(base); err == nil && mf != nil {
					if svc, ok := mf.Lookup(name); ok {
						if len(command) == 0 {
							command = svc.Command
						}
						if !cwdExplicit && svc.Cwd != "" {
							if filepath.IsAbs(svc.Cwd) {
								cwd = svc.Cwd
							} else {
								cwd = filepath.Join(filepath.Dir(mfPath), svc.Cwd)
							}
						}
					}
				}
			}

			if len(command) == 0 {
				return fmt.Errorf("no command given after -- and tap.yaml defines none for %q", name)
			}

			tapDir := rootOpts.tapDir
			if tapDir == "" {
				tapDir = filepath.Join(base, ".tap")
			}

			if foreground {
				return runner.Run(runner.Config{
					Name:     name,
					TapDir:   tapDir,
					Command:  command,
					Cwd:      cwd,
					UsePTY:   usePTY,
					Forward:  forward,
					MaxLines: maxLines,
					MaxBytes: maxBytes,
				})
			}

			return spawnDetached(name, tapDir, cwd, command, usePTY, forward, maxLines, maxBytes)
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the child process")
	cmd.Flags().BoolVar(&usePTY, "pty", false, "run the child attached to a pseudo-terminal")
	cmd.Flags().BoolVar(&forward, "forward", false, "report forward=true in status (the child's output is not copied anywhere)")
	cmd.Flags().IntVar(&maxLines, "max-lines", 0, "ring buffer line cap (0 uses the default)")
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 0, "ring buffer byte cap (0 uses the default)")
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run the runner in this process instead of detaching")
	return cmd
}

// spawnDetached execs tapd as a session-leading background process so it
// survives the client exiting.
func spawnDetached(name, tapDir, cwd string, command []string, usePTY, forward bool, maxLines, maxBytes int) error {
	bin, err := tapdPath()
	if err != nil {
		return err
	}

	args := []string{"--name", name, "--tap-dir", tapDir}
	if cwd != "" {
		args = append(args, "--cwd", cwd)
	}
	if usePTY {
		args = append(args, "--pty")
	}
	if forward {
		args = append(args, "--forward")
	}
	if maxLines > 0 {
		args = append(args, "--max-lines", fmt.Sprint(maxLines))
	}
	if maxBytes > 0 {
		args = append(args, "--max-bytes", fmt.Sprint(maxBytes))
	}
	args = append(args, "--")
	args = append(args, command...)

	child := exec.Command(bin, args...)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devnull.Close()
	child.Stdin = devnull
	child.Stdout = devnull
	child.Stderr = devnull

	if err := child.Start(); err != nil {
		return fmt.Errorf("start tapd: %w", err)
	}

	socketPath := filepath.Join(tapDir, name+".sock")
	if err := waitForSocket(socketPath, 5*time.Second); err != nil {
		return fmt.Errorf("tapd started (pid=%d) but socket never appeared: %w", child.Process.Pid, err)
	}

	fmt.Printf("started %s (pid=%d) socket=%s\n", name, child.Process.Pid, socketPath)
	return nil
}

func tapdPath() (string, error) {
	if p, err := exec.LookPath("tapd"); err == nil {
		return p, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate tapd: %w", err)
	}
	candidate := filepath.Join(filepath.Dir(exe), "tapd")
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("tapd binary not found next to tap or on PATH")
	}
	return candidate, nil
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s", path)
}
