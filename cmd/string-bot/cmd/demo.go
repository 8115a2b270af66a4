package cmd

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	stringbot "github.com/alphauser-don/string-bot"
)

var (
	demoRedisAddr  string
	demoPassphrase string
	demoOwnerID    int64
	demoCode       string
	demoPassword   string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run an interactive console session against a scripted provider",
	Long: `Starts the engine with a scripted auth provider and reads messages from
stdin, one per line, as user 1001. The provider accepts the code given by
--code; when --password is set the account requires that second-factor
password. Without --redis-addr an embedded miniredis is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cleanup func()
		var client redis.UniversalClient

		if demoRedisAddr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				return fmt.Errorf("failed to start miniredis: %w", err)
			}
			client = redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs: []string{mr.Addr()},
			})
			cleanup = func() {
				_ = client.Close()
				mr.Close()
			}
			fmt.Printf("using miniredis at %s\n", mr.Addr())
		} else {
			client = redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs: []string{demoRedisAddr},
			})
			cleanup = func() { _ = client.Close() }
			fmt.Printf("using redis at %s\n", demoRedisAddr)
		}
		defer cleanup()

		cfg := stringbot.DefaultConfig()
		cfg.Crypto.Passphrase = demoPassphrase
		cfg.Owner.UserID = demoOwnerID

		messenger := &consoleMessenger{out: os.Stdout}

		engine, err := stringbot.New().
			WithConfig(cfg).
			WithRedis(client).
			WithAuthProvider(&scriptedProvider{code: demoCode, password: demoPassword}).
			WithMessenger(messenger).
			WithAuditSink(stringbot.NewMessengerSink(messenger)).
			Build()
		if err != nil {
			return err
		}
		defer engine.Close()

		const userID int64 = 1001
		fmt.Printf("you are user %d; send /help to begin, /quit to exit\n", userID)
		fmt.Printf("the provider accepts code %q", demoCode)
		if demoPassword != "" {
			fmt.Printf(" and second-factor password %q", demoPassword)
		}
		fmt.Println()

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("you> ")
			if !scanner.Scan() {
				break
			}
			line := scanner.Text()
			if line == "/quit" {
				break
			}
			if err := engine.HandleInput(context.Background(), userID, line); err != nil {
				fmt.Fprintf(os.Stderr, "delivery error: %v\n", err)
			}
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().StringVar(&demoRedisAddr, "redis-addr", "", "Redis address; empty starts an embedded miniredis")
	demoCmd.Flags().StringVar(&demoPassphrase, "passphrase", "demo-only-passphrase", "Encryption passphrase for stored sessions")
	demoCmd.Flags().Int64Var(&demoOwnerID, "owner", 1001, "Owner user id (matches the demo user by default)")
	demoCmd.Flags().StringVar(&demoCode, "code", "12345", "Login code the scripted provider accepts")
	demoCmd.Flags().StringVar(&demoPassword, "password", "", "Second-factor password; empty disables the second factor")
}

type consoleMessenger struct {
	out *os.File
}

func (m *consoleMessenger) Reply(_ context.Context, userID int64, text string, _ ...stringbot.Button) error {
	_, err := fmt.Fprintf(m.out, "bot(%d)> %s\n", userID, text)
	return err
}

func (m *consoleMessenger) NotifyAuditChannel(_ context.Context, text string) error {
	_, err := fmt.Fprintf(m.out, "audit> %s\n", text)
	return err
}

// scriptedProvider stands in for the real account backend. It accepts one
// fixed code and, when configured, one fixed second-factor password.
type scriptedProvider struct {
	code     string
	password string
}

type scriptedHandle struct {
	released bool
}

func (p *scriptedProvider) Connect(_ context.Context, appID int, appHash string) (stringbot.ProviderHandle, error) {
	if appID <= 0 || appHash == "" {
		return nil, stringbot.ErrProviderInvalidCredentials
	}
	return &scriptedHandle{}, nil
}

func (p *scriptedProvider) RequestCode(_ context.Context, handle stringbot.ProviderHandle, _ string) (string, error) {
	if err := checkHandle(handle); err != nil {
		return "", err
	}
	return "scripted-code-hash", nil
}

func (p *scriptedProvider) VerifyCode(_ context.Context, handle stringbot.ProviderHandle, code, _ string) (*stringbot.VerifyResult, error) {
	if err := checkHandle(handle); err != nil {
		return nil, err
	}
	if code != p.code {
		return nil, stringbot.ErrProviderInvalidCode
	}
	if p.password != "" {
		return &stringbot.VerifyResult{SecondFactorRequired: true}, nil
	}
	return &stringbot.VerifyResult{
		Identity:      424242,
		SessionString: randomSessionString(),
	}, nil
}

func (p *scriptedProvider) VerifySecondFactor(_ context.Context, handle stringbot.ProviderHandle, password string) (*stringbot.VerifyResult, error) {
	if err := checkHandle(handle); err != nil {
		return nil, err
	}
	if password != p.password {
		return nil, stringbot.ErrProviderSecondFactorInvalid
	}
	return &stringbot.VerifyResult{
		Identity:      424242,
		SessionString: randomSessionString(),
	}, nil
}

func (p *scriptedProvider) Release(_ context.Context, handle stringbot.ProviderHandle) error {
	h, ok := handle.(*scriptedHandle)
	if !ok {
		return stringbot.ErrProviderUnavailable
	}
	h.released = true
	return nil
}

func checkHandle(handle stringbot.ProviderHandle) error {
	h, ok := handle.(*scriptedHandle)
	if !ok || h.released {
		return stringbot.ErrProviderUnavailable
	}
	return nil
}

func randomSessionString() string {
	raw := make([]byte, 48)
	_, _ = rand.Read(raw)
	return "1" + base64.URLEncoding.EncodeToString(raw)
}
