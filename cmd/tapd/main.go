// Command tapd is the runner daemon: it spawns and supervises one child
// process and serves the control-plane API over a Unix socket. Client tools
// talk to it through cmd/tap; it is not meant to be invoked interactively.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bbatchelder/tap/internal/manifest"
	"github.com/bbatchelder/tap/internal/runner"
)

func main() {
	var (
		name     string
		tapDir   string
		cwd      string
		envFlags []string
		usePTY   bool
		forward  bool
		maxLines int
		maxBytes int
	)

	root := &cobra.Command{
		Use:   "tapd <command> [args...]",
		Short: "tap runner daemon",
		Long:  "Runs a single child process under supervision and serves its status, logs, and lifecycle over a local Unix socket.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			cwdExplicit := cmd.Flags().Changed("cwd")
			base := cwd
			if base == "" {
				base = mustGetwd()
			}

			command := args
			if mf, mfPath, err := manifest.FindNear(base); err == nil && mf != nil {
				if svc, ok := mf.Lookup(name); ok {
					applyManifestDefaults(cmd.Flags().Changed, &usePTY, &forward, &maxLines, &maxBytes, svc)
					if len(command) == 0 {
						command = svc.Command
					}
					if !cwdExplicit && svc.Cwd != "" {
						if filepath.IsAbs(svc.Cwd) {
							base = svc.Cwd
						} else {
							base = filepath.Join(filepath.Dir(mfPath), svc.Cwd)
						}
					}
				}
			}
			cwd = base

			if len(command) == 0 {
				return fmt.Errorf("no command given and tap.yaml defines none for %q", name)
			}
			if tapDir == "" {
				tapDir = filepath.Join(mustGetwd(), ".tap")
			}

			cfg := runner.Config{
				Name:     name,
				TapDir:   tapDir,
				Command:  command,
				Cwd:      cwd,
				Env:      envFlags,
				UsePTY:   usePTY,
				Forward:  forward,
				MaxLines: maxLines,
				MaxBytes: maxBytes,
			}
			return runner.Run(cfg)
		},
	}
	root.Flags().SetInterspersed(false)
	root.Flags().StringVar(&name, "name", "", "service name used for the socket file")
	root.Flags().StringVar(&tapDir, "tap-dir", "", "directory holding the control socket (default: ./.tap)")
	root.Flags().StringVar(&cwd, "cwd", "", "working directory for the child process (default: current directory)")
	root.Flags().StringArrayVar(&envFlags, "env", nil, "KEY=VALUE to add to the child's environment (repeatable)")
	root.Flags().BoolVar(&usePTY, "pty", false, "run the child attached to a pseudo-terminal")
	root.Flags().BoolVar(&forward, "forward", false, "report forward=true in status (the child's output is not copied anywhere)")
	root.Flags().IntVar(&maxLines, "max-lines", 0, "ring buffer line cap (0 uses the default)")
	root.Flags().IntVar(&maxBytes, "max-bytes", 0, "ring buffer byte cap (0 uses the default)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func applyManifestDefaults(changed func(string) bool, usePTY, forward *bool, maxLines, maxBytes *int, svc manifest.Service) {
	if svc.PTY != nil && !changed("pty") {
		*usePTY = *svc.PTY
	}
	if svc.Forward != nil && !changed("forward") {
		*forward = *svc.Forward
	}
	if svc.MaxLines != 0 && !changed("max-lines") {
		*maxLines = svc.MaxLines
	}
	if svc.MaxBytes != 0 && !changed("max-bytes") {
		*maxBytes = svc.MaxBytes
	}
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "getwd:", err)
		os.Exit(1)
	}
	return wd
}
