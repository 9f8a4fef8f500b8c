package entity

import "bytes"

// ValidatorSet is an ordered list of 33-byte compressed secp256k1 public keys
// together with the number of signatures a proof over this set requires.
type ValidatorSet struct {
	Validators     [][]byte
	ID             uint64
	ProofThreshold uint32
}

func NewValidatorSet(validators [][]byte, id uint64, proofThreshold uint32) *ValidatorSet {
	return &ValidatorSet{
		Validators:     validators,
		ID:             id,
		ProofThreshold: proofThreshold,
	}
}

func (s *ValidatorSet) IsEmpty() bool {
	return s == nil || len(s.Validators) == 0
}

// AuthorityIndex returns the position of the given public key within the set.
func (s *ValidatorSet) AuthorityIndex(key []byte) (uint32, bool) {
	if s == nil {
		return 0, false
	}
	for i, v := range s.Validators {
		if bytes.Equal(v, key) {
			return uint32(i), true
		}
	}
	return 0, false
}

func (s *ValidatorSet) Contains(key []byte) bool {
	_, ok := s.AuthorityIndex(key)
	return ok
}

// ValidatorSetChangeInfo is emitted when a validator set rotation is started.
type ValidatorSetChangeInfo struct {
	CurrentSetID uint64
	NextSetID    uint64
	NextKeys     [][]byte
}
