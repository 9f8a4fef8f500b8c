package repository

import (
	"github.com/omni/ethy-witness/db"
	"github.com/omni/ethy-witness/entity"
	"github.com/omni/ethy-witness/repository/postgres"
)

type Repo struct {
	EventProofs entity.EventProofsRepo
	Witnesses   entity.WitnessesRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		EventProofs: postgres.NewEventProofsRepo("event_proofs", db),
		Witnesses:   postgres.NewWitnessesRepo("witnesses", db),
	}
}
