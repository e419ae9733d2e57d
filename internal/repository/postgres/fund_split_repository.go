package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"aklineservice/internal/domain"
)

// FundSplitRepository records fund split dates. The core pipeline only
// writes this table; downstream adjustment consumers read it.
type FundSplitRepository struct {
	db *sqlx.DB
}

// NewFundSplitRepository constructs a FundSplitRepository.
func NewFundSplitRepository(db *sqlx.DB) *FundSplitRepository {
	return &FundSplitRepository{db: db}
}

// RecordSplits inserts fund splits, ignoring (fund_code, split_date)
// pairs already present.
func (r *FundSplitRepository) RecordSplits(ctx context.Context, splits []domain.FundSplit) error {
	if len(splits) == 0 {
		return nil
	}
	query := `INSERT INTO fund_splits (fund_code, split_date) VALUES ($1, $2)
		ON CONFLICT (fund_code, split_date) DO NOTHING`
	for _, s := range splits {
		if _, err := r.db.ExecContext(ctx, query, s.FundCode, dateOnly(s.SplitDate)); err != nil {
			return fmt.Errorf("record fund split %s %s: %w", s.FundCode, s.SplitDate, err)
		}
	}
	return nil
}
