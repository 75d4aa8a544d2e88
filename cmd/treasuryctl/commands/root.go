package commands

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/gotreasury/internal/authz"
	"github.com/TimurManjosov/gotreasury/internal/cli"
	"github.com/TimurManjosov/gotreasury/internal/client"
)

var (
	// Global flags
	baseURL string
	apiKey  string
	keyFile string
	format  string
	quiet   bool
)

// authorizationTTL is how long a freshly signed authorization stays valid.
const authorizationTTL = 5 * time.Minute

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "treasuryctl",
	Short: "CLI tool for managing treasury distribution rules",
	Long: `Treasuryctl is a command-line tool for managing distribution rules in the
gotreasury service.

It provides commands for listing, inspecting, creating and updating rules.
Mutations are signed with a local ed25519 key; the signer address must be in
the server's authorized signer set.

Examples:
  treasuryctl list
  treasuryctl get 3 --format json
  treasuryctl history 3
  treasuryctl create --name ops-split --type THRESHOLD --trigger 100000 \
      --recipients ops,reserve --values 6000,4000 --percentages --max 500000
  treasuryctl update 3 --status PAUSED`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the treasury API")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Admin API key for authentication")
	rootCmd.PersistentFlags().StringVar(&keyFile, "key-file", "", "Path to the hex-encoded ed25519 signing seed")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
}

// effectiveConfig merges command-line flags over the config file.
func effectiveConfig() (*cli.Config, error) {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if keyFile != "" {
		cfg.KeyFile = keyFile
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("no base URL configured; pass --base-url or set base_url in the config file")
	}
	return cfg, nil
}

// signAuthorization loads the signing key, fetches the next usable nonce from
// the server and signs a fresh authorization for the given payload skeleton.
func signAuthorization(ctx context.Context, c *client.Client, cfg *cli.Config, ruleID, amount int64, target string) (client.Authorization, error) {
	if cfg.KeyFile == "" {
		return client.Authorization{}, fmt.Errorf("no signing key configured; pass --key-file or set key_file in the config file")
	}
	priv, err := cli.LoadSigningKey(cfg.KeyFile)
	if err != nil {
		return client.Authorization{}, err
	}

	addr := authz.SignerAddress(priv.Public().(ed25519.PublicKey))
	nonce, err := c.NextNonce(ctx, addr)
	if err != nil {
		return client.Authorization{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	payload := authz.Payload{
		RuleID:   ruleID,
		Target:   target,
		Amount:   amount,
		Nonce:    nonce,
		Deadline: time.Now().Add(authorizationTTL).Unix(),
	}
	return client.SignAuthorization(priv, cfg.Domain.ToDomain(), payload), nil
}
