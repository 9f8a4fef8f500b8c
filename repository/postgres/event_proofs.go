package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/ethy-witness/db"
	"github.com/omni/ethy-witness/entity"
)

type eventProofsRepo basePostgresRepo

func NewEventProofsRepo(table string, db *db.DB) entity.EventProofsRepo {
	return (*eventProofsRepo)(newBasePostgresRepo(table, db))
}

func (r *eventProofsRepo) Ensure(ctx context.Context, proof *entity.EventProof) error {
	if len(proof.ProofKey) == 0 {
		proof.ProofKey = entity.MakeProofKey(proof.ChainID, proof.EventID)
	}
	sigs, err := proof.Signatures.Value()
	if err != nil {
		return fmt.Errorf("can't encode proof signatures: %w", err)
	}
	validators, err := proof.Validators.Value()
	if err != nil {
		return fmt.Errorf("can't encode proof validators: %w", err)
	}
	q, args, err := sq.Insert(r.table).
		Columns("proof_key", "chain_id", "event_id", "validator_set_id", "digest", "block", "signatures", "validators").
		Values(proof.ProofKey, proof.ChainID, proof.EventID, proof.ValidatorSetID, proof.Digest, proof.Block, sigs, validators).
		Suffix("ON CONFLICT (proof_key) DO UPDATE SET signatures = EXCLUDED.signatures, validators = EXCLUDED.validators, block = EXCLUDED.block, updated_at = NOW()").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert event proof: %w", err)
	}
	return nil
}

func (r *eventProofsRepo) GetByProofKey(ctx context.Context, proofKey []byte) (*entity.EventProof, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"proof_key": proofKey}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	proof := new(entity.EventProof)
	err = r.db.GetContext(ctx, proof, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't get event proof: %w", err)
	}
	return proof, nil
}

func (r *eventProofsRepo) GetByEvent(ctx context.Context, chainID entity.ChainID, eventID uint64) (*entity.EventProof, error) {
	return r.GetByProofKey(ctx, entity.MakeProofKey(chainID, eventID))
}
