package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bbatchelder/tap/internal/control"
)

func stopCmd() *cobra.Command {
	var graceMS int

	cmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a service's child and terminate its runner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sock, err := resolveSocket(args[0])
			if err != nil {
				return err
			}

			req := control.StopRequest{}
			if cmd.Flags().Changed("grace-ms") {
				req.GraceMS = &graceMS
			}

			var resp control.StopResponse
			if err := newClient(sock).post("/v1/stop", req, &resp); err != nil {
				return err
			}
			fmt.Printf("stopped: %v\n", resp.Stopped)
			return nil
		},
	}
	cmd.Flags().IntVar(&graceMS, "grace-ms", 2000, "milliseconds to wait after SIGTERM before SIGKILL")
	return cmd
}
