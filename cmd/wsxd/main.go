package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// 构建时注入
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wsxd",
		Short: "Typed message routing server over WebSocket and TCP",
		Long: `wsxd accepts WebSocket and line-framed TCP connections, registers each
under a unique key and dispatches tagged messages to built-in handlers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		dialCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wsxd %s (%s)\n", version, commit)
		},
	}
}
