package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gembot",
	Short: "Telegram relay bot for the Gemini completion backend",
	Long:  "Gembot relays Telegram messages and images to a generative-language backend and streams the result back as an edited status message.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
