package cli

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/witness"
)

var ErrInvalidSignature = errors.New("signature does not match")

func VerifyCmd() *cobra.Command {
	var (
		chain     string
		message   string
		publicKey string
		signature string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a witness signature against an event payload",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			chainID, err := entity.ParseChainID(chain)
			if err != nil {
				return err
			}

			digest, ok, err := witness.VerifyWitnessSignature(chainID, common.FromHex(message), common.FromHex(publicKey), common.FromHex(signature))
			if err != nil {
				return fmt.Errorf("can't verify witness signature: %w", err)
			}
			cmd.Printf("digest: %s\n", digest)
			if !ok {
				return ErrInvalidSignature
			}
			cmd.Println("signature is valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&chain, "chain-id", "", "destination chain, ethereum or xrpl")
	cmd.Flags().StringVar(&message, "message", "", "hex encoded event payload, the 32-byte digest data for ethereum or the raw tx blob for xrpl")
	cmd.Flags().StringVar(&publicKey, "public-key", "", "hex encoded compressed public key of the witness")
	cmd.Flags().StringVar(&signature, "signature", "", "hex encoded 65-byte recoverable signature")
	for _, flag := range []string{"chain-id", "message", "public-key", "signature"} {
		_ = cmd.MarkFlagRequired(flag)
	}
	return cmd
}
