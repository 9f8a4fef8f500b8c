package entity

import (
	"context"
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EngineID prefixes every proof storage key.
var EngineID = [4]byte{'E', 'T', 'H', 'Y'}

const (
	signatureLength     = 65
	compressedKeyLength = 33
)

// MakeProofKey builds the unique storage key of a proof:
// engine id, chain id byte, big-endian event id.
func MakeProofKey(chainID ChainID, eventID uint64) []byte {
	key := make([]byte, 0, len(EngineID)+1+8)
	key = append(key, EngineID[:]...)
	key = append(key, byte(chainID))
	key = binary.BigEndian.AppendUint64(key, eventID)
	return key
}

// AuthoritySignature pairs a validator's index within its set with the
// 65-byte [R || S || V] signature it produced.
type AuthoritySignature struct {
	AuthorityIndex uint32
	Signature      []byte
}

// AuthoritySignatures is the compact proof form: pairs ordered by ascending
// authority index, at most one per authority. It round-trips through a single
// BYTEA column, each entry is a 4-byte big-endian index followed by the
// 65-byte signature.
type AuthoritySignatures []AuthoritySignature

func (s AuthoritySignatures) Value() (driver.Value, error) {
	blob := make([]byte, 0, len(s)*(4+signatureLength))
	for _, sig := range s {
		if len(sig.Signature) != signatureLength {
			return nil, fmt.Errorf("invalid signature length %d for authority %d", len(sig.Signature), sig.AuthorityIndex)
		}
		blob = binary.BigEndian.AppendUint32(blob, sig.AuthorityIndex)
		blob = append(blob, sig.Signature...)
	}
	return blob, nil
}

func (s *AuthoritySignatures) Scan(src interface{}) error {
	blob, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("can't scan %T into AuthoritySignatures", src)
	}
	const entryLen = 4 + signatureLength
	if len(blob)%entryLen != 0 {
		return fmt.Errorf("invalid signatures blob length %d", len(blob))
	}
	res := make(AuthoritySignatures, 0, len(blob)/entryLen)
	for off := 0; off < len(blob); off += entryLen {
		res = append(res, AuthoritySignature{
			AuthorityIndex: binary.BigEndian.Uint32(blob[off : off+4]),
			Signature:      append([]byte{}, blob[off+4:off+entryLen]...),
		})
	}
	*s = res
	return nil
}

// ValidatorKeys is the ordered list of compressed public keys of the set a
// proof was completed under. Round-trips through a single BYTEA column of
// concatenated 33-byte keys.
type ValidatorKeys [][]byte

func (k ValidatorKeys) Value() (driver.Value, error) {
	blob := make([]byte, 0, len(k)*compressedKeyLength)
	for i, key := range k {
		if len(key) != compressedKeyLength {
			return nil, fmt.Errorf("invalid validator key length %d at index %d", len(key), i)
		}
		blob = append(blob, key...)
	}
	return blob, nil
}

func (k *ValidatorKeys) Scan(src interface{}) error {
	blob, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("can't scan %T into ValidatorKeys", src)
	}
	if len(blob)%compressedKeyLength != 0 {
		return fmt.Errorf("invalid validator keys blob length %d", len(blob))
	}
	res := make(ValidatorKeys, 0, len(blob)/compressedKeyLength)
	for off := 0; off < len(blob); off += compressedKeyLength {
		res = append(res, append([]byte{}, blob[off:off+compressedKeyLength]...))
	}
	*k = res
	return nil
}

// EventProof is a completed, quorum-signed attestation of a single event.
// Validators snapshots the set the proof was completed under, so the proof
// stays self-contained after later rotations.
type EventProof struct {
	ProofKey       []byte              `db:"proof_key"`
	ChainID        ChainID             `db:"chain_id"`
	EventID        uint64              `db:"event_id"`
	ValidatorSetID uint64              `db:"validator_set_id"`
	Digest         common.Hash         `db:"digest"`
	Block          common.Hash         `db:"block"`
	Signatures     AuthoritySignatures `db:"signatures"`
	Validators     ValidatorKeys       `db:"validators"`
	CreatedAt      *time.Time          `db:"created_at"`
	UpdatedAt      *time.Time          `db:"updated_at"`
}

func (p *EventProof) SignatureCount() int {
	return len(p.Signatures)
}

// ExpandedSignatures positions each signature at its authority index within a
// validator set of the given size. Unsigned slots hold empty byte slices.
func (p *EventProof) ExpandedSignatures(validatorCount int) [][]byte {
	expanded := make([][]byte, validatorCount)
	for i := range expanded {
		expanded[i] = []byte{}
	}
	for _, sig := range p.Signatures {
		if int(sig.AuthorityIndex) < validatorCount {
			expanded[sig.AuthorityIndex] = sig.Signature
		}
	}
	return expanded
}

// Event proof payload versioning for the notification stream.
const EventProofVersion1 uint8 = 1

type VersionedEventProof struct {
	Version uint8
	Proof   *EventProof
}

type EventProofsRepo interface {
	Ensure(ctx context.Context, proof *EventProof) error
	GetByProofKey(ctx context.Context, proofKey []byte) (*EventProof, error)
	GetByEvent(ctx context.Context, chainID ChainID, eventID uint64) (*EventProof, error)
}
