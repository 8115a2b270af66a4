package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alphauser-don/string-bot/internal/secret"
)

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a random encryption key",
	Long: `Generates a random 32-byte key suitable for Config.Crypto.Key and prints it
hex-encoded. Store it in your secret manager; losing the key makes every
stored session string unrecoverable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := make([]byte, secret.KeySize)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("failed to read random bytes: %w", err)
		}
		fmt.Println(hex.EncodeToString(key))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genkeyCmd)
}
