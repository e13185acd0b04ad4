package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/marginterm/internal/crypto"
)

const passwordEnv = "MARGINTERM_WALLET_KEY_PASSWORD"

func newKeygenCmd() *cobra.Command {
	var (
		out      string
		password string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a new password-encrypted keypair",
		Long: `Create a new ed25519 keypair and write it encrypted with a password. Point
wallet.encrypted_key_path at the file and set wallet.key_password (or
` + passwordEnv + `) to use it.

Examples:
  ` + passwordEnv + `=secret marginterm keygen --out wallet.enc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				return fmt.Errorf("keygen: set --password or %s", passwordEnv)
			}
			pub, err := writeKeypair(out, password, force)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"public_key": pub,
					"path":       out,
				})
			}
			printSuccess(cmd, "Wrote %s\n  Public key: %s", out, color.CyanString(pub))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "wallet.enc", "output path")
	cmd.Flags().StringVar(&password, "password", "", "encryption password (prefer the environment variable)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// writeKeypair generates a keypair, encrypts it and writes it to path with
// owner-only permissions. It returns the public key.
func writeKeypair(path, password string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("keygen: %s exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("keygen: %w", err)
		}
	}
	key := solana.NewWallet().PrivateKey
	blob, err := crypto.EncryptKey(key, password)
	if err != nil {
		return "", fmt.Errorf("keygen: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return "", fmt.Errorf("keygen: write: %w", err)
	}
	return key.PublicKey().String(), nil
}
