package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/gotreasury/internal/authz"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new ed25519 signing key",
	Long: `Generate a new ed25519 signing key and print the derived signer address.
The hex-encoded seed is written to the output file; hand the printed address
to the server operator for inclusion in the SIGNERS list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}

		seed := hex.EncodeToString(priv.Seed())
		if err := os.WriteFile(keygenOut, []byte(seed+"\n"), 0o600); err != nil {
			return fmt.Errorf("failed to write key file: %w", err)
		}

		if !quiet {
			fmt.Printf("Wrote signing key to %s\n", keygenOut)
			fmt.Printf("Signer address: %s\n", authz.SignerAddress(pub))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().StringVar(&keygenOut, "out", "treasury.key", "Output path for the hex-encoded seed")
}
