package main

import (
	"fmt"
	"os"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/handler"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "segpaint",
	Short:         "Building segmentation and mask coloring service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		b := buildInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "segpaint %s (build %s, %s, %s@%s)\n",
			b.Version, b.BuildID, b.BuildTime, b.GitBranch, b.GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func buildInfo() handler.BuildInfo {
	return handler.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		BuildID:   BuildID,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
