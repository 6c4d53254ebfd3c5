package repository

import (
	"github.com/omni/tally-relay/db"
	"github.com/omni/tally-relay/entity"
	"github.com/omni/tally-relay/repository/postgres"
)

type Repo struct {
	RelayCursors entity.RelayCursorsRepo
	DeadLetters  entity.DeadLettersRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		RelayCursors: postgres.NewRelayCursorsRepo("relay_cursors", db),
		DeadLetters:  postgres.NewDeadLettersRepo("dead_letters", db),
	}
}
