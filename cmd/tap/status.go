package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Show a service's supervisor and buffer status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sock, err := resolveSocket(args[0])
			if err != nil {
				return err
			}
			s, err := newClient(sock).status()
			if err != nil {
				return err
			}

			pid := "-"
			if s.ChildPID != nil {
				pid = fmt.Sprint(*s.ChildPID)
			}
			fmt.Printf("name:        %s\n", s.Name)
			fmt.Printf("runner pid:  %d\n", s.RunnerPID)
			fmt.Printf("child pid:   %s\n", pid)
			fmt.Printf("state:       %s\n", s.ChildState)
			fmt.Printf("uptime:      %s\n", time.Duration(s.UptimeMS)*time.Millisecond)
			fmt.Printf("pty:         %v\n", s.PTY)
			fmt.Printf("forward:     %v\n", s.Forward)
			fmt.Printf("buffer:      %d/%d lines, %d/%d bytes\n", s.Buffer.CurrentLines, s.Buffer.MaxLines, s.Buffer.CurrentBytes, s.Buffer.MaxBytes)
			if s.LastExit != nil {
				code := "-"
				if s.LastExit.Code != nil {
					code = fmt.Sprint(*s.LastExit.Code)
				}
				sig := "-"
				if s.LastExit.Signal != nil {
					sig = *s.LastExit.Signal
				}
				fmt.Printf("last exit:   code=%s signal=%s\n", code, sig)
			}
			return nil
		},
	}
}
