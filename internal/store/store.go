// Package store persists tier calculation history and the latest-tier
// projection.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tier-cli/internal/model"
)

// ErrDuplicateCalculation is returned by AppendCalculation when a
// calculation with the same idempotency key already exists.
var ErrDuplicateCalculation = eris.New("store: duplicate calculation")

// TierCount is one row of the tier distribution.
type TierCount struct {
	Tier  string `json:"tier"`
	Count int    `json:"count"`
}

// Store is the calculation history. Calculations are append-only; the
// summary is a projection maintained in the same transaction as each append.
type Store interface {
	// LatestCalculation returns the newest calculation for crn, or nil.
	LatestCalculation(ctx context.Context, crn string) (*model.TierCalculation, error)
	// GetCalculation returns one calculation for crn, or nil.
	GetCalculation(ctx context.Context, crn string, id uuid.UUID) (*model.TierCalculation, error)
	// ListCalculations returns up to limit calculations for crn, newest first.
	ListCalculations(ctx context.Context, crn string, limit int) ([]model.TierCalculation, error)
	// GetSummary returns the latest-tier summary for crn, or nil.
	GetSummary(ctx context.Context, crn string) (*model.TierSummary, error)

	// AppendCalculation inserts calc and moves the summary forward.
	AppendCalculation(ctx context.Context, calc *model.TierCalculation) error
	// AppendCalculations inserts a batch, skipping duplicates, and returns
	// the number inserted.
	AppendCalculations(ctx context.Context, calcs []model.TierCalculation) (int64, error)
	// DeleteCalculations removes all history and the summary for crn.
	DeleteCalculations(ctx context.Context, crn string) (int64, error)

	// CountCalculationsSince counts calculations created at or after since.
	CountCalculationsSince(ctx context.Context, since time.Time) (int, error)
	// TierDistribution counts subjects by their latest tier.
	TierDistribution(ctx context.Context) ([]TierCount, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}
