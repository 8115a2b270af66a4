package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "string-bot",
	Short: "string-bot issues session strings over a guided chat flow",
	Long: `string-bot walks a user through API ID, API hash, phone, login code, and an
optional second-factor password, then stores the resulting session string
encrypted at rest and hands it back to the user.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
