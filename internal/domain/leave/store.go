package leave

import (
	"context"

	"github.com/jackc/pgx/v5"

	"absence/internal/platform/querier"
)

type Store struct {
	DB querier.TxQuerier
}

func NewStore(db querier.TxQuerier) *Store {
	return &Store{DB: db}
}

func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.DB.Begin(ctx)
}
