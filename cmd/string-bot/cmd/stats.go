package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/alphauser-don/string-bot/session"
)

var (
	statsRedisAddr string
	statsPrefix    string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print session store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{statsRedisAddr},
		})
		defer func() { _ = client.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		store := session.NewStore(client, statsPrefix, 1)
		st, err := store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to read store stats: %w", err)
		}

		fmt.Printf("Users:                %d\n", st.TotalUsers)
		fmt.Printf("Active sessions:      %d\n", st.ActiveSessions)
		fmt.Printf("With second factor:   %d\n", st.SecondFactorSessions)
		fmt.Printf("Created in last 24h:  %d\n", st.CreatedLast24h)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsRedisAddr, "redis-addr", "127.0.0.1:6379", "Redis address")
	statsCmd.Flags().StringVar(&statsPrefix, "prefix", "sb", "Session key prefix")
}
