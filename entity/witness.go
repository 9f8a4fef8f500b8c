package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Witness is a single validator's vote for an event digest.
type Witness struct {
	ChainID        ChainID     `db:"chain_id"`
	EventID        uint64      `db:"event_id"`
	ValidatorSetID uint64      `db:"validator_set_id"`
	Digest         common.Hash `db:"digest"`
	AuthorityID    []byte      `db:"authority_id"`
	Signature      []byte      `db:"signature"`
	Block          common.Hash `db:"block"`
	CreatedAt      *time.Time  `db:"created_at"`
	UpdatedAt      *time.Time  `db:"updated_at"`
}

type WitnessesRepo interface {
	Ensure(ctx context.Context, witness *Witness) error
	FindByEvent(ctx context.Context, chainID ChainID, eventID uint64) ([]*Witness, error)
}
