package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProvidersCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their recorded outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			current := client.CurrentProvider()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tSUCCESS\tFAILURE\tAVG LATENCY\tIN WINDOW")
			for _, name := range client.Providers() {
				marker := ""
				if name == current {
					marker = " *"
				}
				stats, _ := client.ProviderStats(name)
				fmt.Fprintf(w, "%s%s\t%d\t%d\t%s\t%d\n",
					name, marker, stats.Success, stats.Failure, stats.AvgLatency, stats.InWindow)
			}
			return w.Flush()
		},
	}

	flags.register(cmd)
	return cmd
}
