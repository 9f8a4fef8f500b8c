package witness

import (
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/utils"
)

// XRPL multi-signing prefix, see the XRPL serialization format.
var xrplSigningPrefix = []byte{'S', 'M', 'T', 0x00}

var ErrInvalidDigestData = errors.New("invalid digest data")

// DataToDigest maps the chain-specific digest data of an event to the
// 32-byte digest the given authority signs. Ethereum data already is the
// keccak digest of the ABI-encoded event, XRPL signers each sign a distinct
// hash bound to their own account.
func DataToDigest(chainID entity.ChainID, data, authorityKey []byte) (common.Hash, error) {
	switch chainID {
	case entity.ChainIDEthereum:
		if len(data) != common.HashLength {
			return common.Hash{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidDigestData, common.HashLength, len(data))
		}
		return common.BytesToHash(data), nil
	case entity.ChainIDXrpl:
		return XrplSignerDigest(data, authorityKey), nil
	default:
		return common.Hash{}, fmt.Errorf("%w: unsupported chain %d", ErrInvalidDigestData, chainID)
	}
}

// XrplSignerDigest is sha512half over the multi-signing prefix, the
// serialized transaction and the signer's account id.
func XrplSignerDigest(txBlob, authorityKey []byte) common.Hash {
	account := utils.XrplAccountID(authorityKey)
	h := sha512.New()
	h.Write(xrplSigningPrefix)
	h.Write(txBlob)
	h.Write(account[:])
	return common.BytesToHash(h.Sum(nil)[:common.HashLength])
}

// XrplTxDigest is the canonical signer-independent digest of an XRPL
// transaction blob, used to identify the transaction in stored proofs.
func XrplTxDigest(txBlob []byte) common.Hash {
	h := sha512.New()
	h.Write(xrplSigningPrefix)
	h.Write(txBlob)
	return common.BytesToHash(h.Sum(nil)[:common.HashLength])
}
