package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd runs the server when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "signaling",
	Short: "WebRTC signaling relay",
	Long: `signaling relays WebRTC offers, answers and ICE candidates between peers
that share a short-lived room. Configuration is read from the environment
and an optional .env file.`,
	RunE: runServe,
}

func main() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
