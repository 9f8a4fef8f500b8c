package utils

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	//nolint:staticcheck
	"golang.org/x/crypto/ripemd160"
)

// EthereumAddress converts a 33-byte compressed secp256k1 public key into
// the Ethereum address of the corresponding uncompressed key.
func EthereumAddress(compressedKey []byte) (common.Address, error) {
	pk, err := crypto.DecompressPubkey(compressedKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("can't decompress ecdsa public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pk), nil
}

// XrplAccountID derives the 20-byte XRPL account id of a compressed
// secp256k1 public key: RIPEMD-160 over SHA-256 of the key.
func XrplAccountID(compressedKey []byte) [20]byte {
	sha := sha256.Sum256(compressedKey)
	h := ripemd160.New()
	h.Write(sha[:])
	var accountID [20]byte
	copy(accountID[:], h.Sum(nil))
	return accountID
}

// RestoreSignerKey recovers the compressed public key of the signer of a
// 32-byte prehashed digest from a 65-byte [R || S || V] signature.
func RestoreSignerKey(digest, sig []byte) ([]byte, error) {
	if len(sig) >= 65 && sig[64] >= 27 {
		sig = append(append([]byte{}, sig[:64]...), sig[64]-27)
	}
	pk, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return nil, fmt.Errorf("can't recover ecdsa signer: %w", err)
	}
	return crypto.CompressPubkey(pk), nil
}
