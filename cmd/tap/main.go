// Command tap is the client for the tap runner: short-lived invocations that
// locate a running service's socket by name, speak its control-plane API,
// and exit.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bbatchelder/tap/internal/control"
	"github.com/bbatchelder/tap/internal/locator"
	"github.com/bbatchelder/tap/internal/validate"
)

// rootOpts holds the root-level flags shared by every subcommand.
var rootOpts struct {
	tapDir    string
	workspace string
}

func main() {
	root := &cobra.Command{
		Use:   "tap",
		Short: "control plane client for tap-supervised services",
		Long:  "Locates a running service by name and queries or controls it over its Unix socket.",
	}
	root.PersistentFlags().StringVar(&rootOpts.tapDir, "tap-dir", "", "explicit .tap directory, bypassing discovery")
	root.PersistentFlags().StringVar(&rootOpts.workspace, "workspace", "", "base directory for the locator walk (default: current directory)")

	root.AddCommand(
		runCmd(),
		statusCmd(),
		logsCmd(),
		restartCmd(),
		stopCmd(),
		lsCmd(),
		doctorCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveSocket maps a service name to its socket path using the shared
// root flags, returning a helpful error (including the expected default
// path) when nothing is found.
func resolveSocket(name string) (string, error) {
	workspace := rootOpts.workspace
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		workspace = wd
	}
	svc, err := locator.Resolve(workspace, name, rootOpts.tapDir, 0)
	if err != nil {
		if _, ok := err.(*validate.Error); ok {
			return "", err
		}
		return "", &clientError{Code: control.CodeNoRunner, Message: fmt.Sprintf("%s (expected socket at %s)", err, svc.SocketPath)}
	}
	return svc.SocketPath, nil
}
