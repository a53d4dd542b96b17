package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"gamechain/internal/chainerr"
)

// keyCmd generates Ed25519 keypairs for signing transactions. Addresses
// are the raw 32-byte public key, matching how the runtime's admission
// stage verifies tx.Signature against tx.Signer directly as a public key.
func keyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "key", Short: "key material utilities"}
	cmd.AddCommand(keyGenerateCmd())
	cmd.AddCommand(keyInspectCmd())
	return cmd
}

func keyGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "generate a new Ed25519 keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return chainerr.New(chainerr.IO, "generate key: %v", err)
			}
			fmt.Printf("address:     %s\n", hex.EncodeToString(pub))
			fmt.Printf("private key: %s\n", hex.EncodeToString(priv))
			fmt.Println("store the private key out of band; gamechaind never persists it")
			return nil
		},
	}
}

func keyInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [private-key-hex]",
		Short: "derive an address from a hex-encoded Ed25519 private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil || len(raw) != ed25519.PrivateKeySize {
				return chainerr.New(chainerr.DecodeMalformed, "expected a %d-byte hex private key", ed25519.PrivateKeySize)
			}
			priv := ed25519.PrivateKey(raw)
			pub := priv.Public().(ed25519.PublicKey)
			fmt.Printf("address: %s\n", hex.EncodeToString(pub))
			return nil
		},
	}
}
