package workflow

import "absence/internal/platform/querier"

// Store is the PostgreSQL RuleStore.
type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

var _ RuleStore = (*Store)(nil)
