package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bbatchelder/tap/internal/locator"
)

const doctorProbeTimeout = 500 * time.Millisecond

func doctorCmd() *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Sweep the workspace for stale sockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := rootOpts.workspace
			if workspace == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				workspace = wd
			}

			services := locator.Enumerate(workspace, 0)
			if len(services) == 0 {
				fmt.Println("no services found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tSOCKET")
			for _, s := range services {
				if probeAlive(s.SocketPath) {
					fmt.Fprintf(w, "%s\talive\t%s\n", s.Name, s.SocketPath)
					continue
				}
				fmt.Fprintf(w, "%s\tstale\t%s\n", s.Name, s.SocketPath)
				if fix {
					os.Remove(s.SocketPath)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "unlink stale sockets found during the sweep")
	return cmd
}

// probeAlive mirrors the Control Server's bind-time stale-socket check: a
// short-timeout GET /v1/status over the candidate socket.
func probeAlive(socketPath string) bool {
	client := &http.Client{
		Timeout: doctorProbeTimeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				d := net.Dialer{Timeout: doctorProbeTimeout}
				return d.DialContext(ctx, "unix", socketPath)
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
