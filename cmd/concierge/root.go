package main

import (
	"os"

	"github.com/spf13/cobra"
)

var chatUser string

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Personal assistant task orchestrator",
	Long: `Concierge routes free-text requests to background workers:
reminders and messages, research write-ups, and prospect searches.

With no arguments, starts an interactive chat session. Tasks run
asynchronously; progress and results stream back into the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&chatUser, "user", "local", "User id for tasks and quotas")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
