package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information - can be set during build with ldflags
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information for atsbeaters",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "atsbeaters version %s\n", Version)
			fmt.Fprintf(w, "Git commit: %s\n", GitCommit)
			fmt.Fprintf(w, "Build date: %s\n", BuildDate)
		},
	}
}
