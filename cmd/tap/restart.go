package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bbatchelder/tap/internal/control"
)

func restartCmd() *cobra.Command {
	var (
		graceMS   int
		timeoutMS int
		clearLogs bool
		ready     string
		readyRe   bool
	)

	cmd := &cobra.Command{
		Use:   "restart <name>",
		Short: "Stop and respawn a service's child process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sock, err := resolveSocket(args[0])
			if err != nil {
				return err
			}

			req := control.RestartRequest{ClearLogs: clearLogs}
			if cmd.Flags().Changed("grace-ms") {
				req.GraceMS = &graceMS
			}
			if cmd.Flags().Changed("timeout-ms") {
				req.TimeoutMS = &timeoutMS
			}
			if ready != "" {
				t := "substring"
				if readyRe {
					t = "regex"
				}
				req.Ready = &control.ReadySpec{Type: t, Pattern: ready}
			}

			c := newClient(sock)
			c.http.Timeout = time.Duration(graceMS+timeoutMS)*time.Millisecond + requestTimeout

			var resp control.RestartResponse
			if err := c.post("/v1/restart", req, &resp); err != nil {
				return err
			}

			pid := "-"
			if resp.PID != nil {
				pid = fmt.Sprint(*resp.PID)
			}
			if !resp.Ready && req.Ready != nil {
				fmt.Printf("restarted (pid=%s), readiness not observed before timeout\n", pid)
				for _, line := range resp.Snippet {
					fmt.Println("  " + line)
				}
				return nil
			}
			fmt.Printf("restarted (pid=%s)\n", pid)
			if resp.ReadyMatch != nil {
				fmt.Printf("ready: %s\n", *resp.ReadyMatch)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&graceMS, "grace-ms", 2000, "milliseconds to wait after SIGTERM before SIGKILL")
	cmd.Flags().IntVar(&timeoutMS, "timeout-ms", 20000, "milliseconds to wait for --ready before giving up")
	cmd.Flags().BoolVar(&clearLogs, "clear-logs", false, "clear the ring buffer before respawning")
	cmd.Flags().StringVar(&ready, "ready", "", "wait for this text to appear before reporting ready")
	cmd.Flags().BoolVar(&readyRe, "ready-regex", false, "treat --ready as a regular expression")
	return cmd
}
