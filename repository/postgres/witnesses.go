package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/ethy-witness/db"
	"github.com/omni/ethy-witness/entity"
)

type witnessesRepo basePostgresRepo

func NewWitnessesRepo(table string, db *db.DB) entity.WitnessesRepo {
	return (*witnessesRepo)(newBasePostgresRepo(table, db))
}

func (r *witnessesRepo) Ensure(ctx context.Context, witness *entity.Witness) error {
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "event_id", "validator_set_id", "digest", "authority_id", "signature", "block").
		Values(witness.ChainID, witness.EventID, witness.ValidatorSetID, witness.Digest, witness.AuthorityID, witness.Signature, witness.Block).
		Suffix("ON CONFLICT (chain_id, event_id, authority_id) DO UPDATE SET updated_at = NOW()").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert witness: %w", err)
	}
	return nil
}

func (r *witnessesRepo) FindByEvent(ctx context.Context, chainID entity.ChainID, eventID uint64) ([]*entity.Witness, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID, "event_id": eventID}).
		OrderBy("authority_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	witnesses := make([]*entity.Witness, 0, 8)
	err = r.db.SelectContext(ctx, &witnesses, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't get witnesses: %w", err)
	}
	return witnesses, nil
}
