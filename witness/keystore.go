package witness

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/omni/ethy-witness/utils"
)

// Keystore wraps the validator's secp256k1 signing key. All signing goes
// over prehashed 32-byte digests.
type Keystore struct {
	key    *ecdsa.PrivateKey
	public []byte
}

func NewKeystore(key *ecdsa.PrivateKey) *Keystore {
	return &Keystore{
		key:    key,
		public: crypto.CompressPubkey(&key.PublicKey),
	}
}

func NewKeystoreFromHex(hexKey string) (*Keystore, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("can't parse private key: %w", err)
	}
	return NewKeystore(key), nil
}

func LoadKeystore(path string) (*Keystore, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("can't load private key: %w", err)
	}
	return NewKeystore(key), nil
}

// PublicKey returns the 33-byte compressed public key.
func (k *Keystore) PublicKey() []byte {
	return k.public
}

// SignPrehashed produces a 65-byte [R || S || V] signature over the digest.
func (k *Keystore) SignPrehashed(digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], k.key)
	if err != nil {
		return nil, fmt.Errorf("can't sign digest: %w", err)
	}
	return sig, nil
}

// VerifyPrehashed checks a [R || S || V] signature over a prehashed digest
// against a compressed public key. The recovery byte must match too, a
// signature that recovers to a different key is rejected.
func VerifyPrehashed(publicKey, sig []byte, digest common.Hash) bool {
	if len(sig) != crypto.SignatureLength || len(publicKey) == 0 {
		return false
	}
	recovered, err := utils.RestoreSignerKey(digest[:], sig)
	if err != nil {
		return false
	}
	return bytes.Equal(recovered, publicKey)
}
