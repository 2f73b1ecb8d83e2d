package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bbatchelder/tap/internal/locator"
)

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List services discoverable from the workspace",
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
			fmt.Fprintln(w, "NAME\tSOCKET")
			for _, s := range services {
				fmt.Fprintf(w, "%s\t%s\n", s.Name, s.SocketPath)
			}
			return w.Flush()
		},
	}
}
