package postgres

import (
	"aklineservice/internal/store"

	"github.com/jmoiron/sqlx"
)

// PostgresStore composes the historical and intraday repositories into the
// single store.Store contract the reader and router depend on.
type PostgresStore struct {
	*CandleRepository
	*IntradayRepository
}

// NewPostgresStore constructs the combined store over one sqlx connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		CandleRepository:   NewCandleRepository(db),
		IntradayRepository: NewIntradayRepository(db),
	}
}

var _ store.Store = (*PostgresStore)(nil)
