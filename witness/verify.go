package witness

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/ethy-witness/entity"
)

// VerifyWitnessSignature checks a witness signature over raw digest data
// out of band, without a validator set. Returns the digest the authority
// was expected to sign and whether the signature matches it.
func VerifyWitnessSignature(chainID entity.ChainID, data, authorityKey, sig []byte) (common.Hash, bool, error) {
	digest, err := DataToDigest(chainID, data, authorityKey)
	if err != nil {
		return common.Hash{}, false, err
	}
	return digest, VerifyPrehashed(authorityKey, sig, digest), nil
}
