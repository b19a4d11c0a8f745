package store

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tier-cli/internal/db"
	"github.com/sells-group/tier-cli/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to url and returns a store that owns the pool.
func NewPostgres(ctx context.Context, url string, cfg db.PoolConfig) (*PostgresStore, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	if cfg.MinConns <= 0 {
		cfg.MinConns = 2
	}
	pool, err := db.Connect(ctx, url, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tier_calculation (
	id                UUID PRIMARY KEY,
	crn               TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	protect_level     TEXT NOT NULL,
	protect_score     INTEGER NOT NULL CHECK (protect_score >= 0),
	protect_breakdown JSONB NOT NULL,
	change_level      SMALLINT NOT NULL,
	change_score      INTEGER NOT NULL CHECK (change_score >= 0),
	change_breakdown  JSONB NOT NULL,
	change_reason     TEXT NOT NULL,
	trigger_kind      TEXT NOT NULL,
	idempotency_key   TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_tier_calculation_crn_created ON tier_calculation(crn, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tier_calculation_created ON tier_calculation(created_at);

CREATE TABLE IF NOT EXISTS tier_summary (
	crn            TEXT PRIMARY KEY,
	calculation_id UUID NOT NULL,
	protect_level  TEXT NOT NULL,
	change_level   SMALLINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);
`

const calculationColumns = `id, crn, created_at, protect_level, protect_score, protect_breakdown, change_level, change_score, change_breakdown, change_reason, trigger_kind, idempotency_key`

var calculationColumnList = []string{
	"id", "crn", "created_at",
	"protect_level", "protect_score", "protect_breakdown",
	"change_level", "change_score", "change_breakdown",
	"change_reason", "trigger_kind", "idempotency_key",
}

const pgInsertCalculation = `INSERT INTO tier_calculation (` + calculationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (idempotency_key) DO NOTHING`

const pgUpsertSummary = `INSERT INTO tier_summary (crn, calculation_id, protect_level, change_level, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (crn) DO UPDATE SET
	calculation_id = EXCLUDED.calculation_id,
	protect_level = EXCLUDED.protect_level,
	change_level = EXCLUDED.change_level,
	created_at = EXCLUDED.created_at
WHERE tier_summary.created_at <= EXCLUDED.created_at`

const pgRefreshSummaries = `INSERT INTO tier_summary (crn, calculation_id, protect_level, change_level, created_at)
SELECT DISTINCT ON (crn) crn, id, protect_level, change_level, created_at
FROM tier_calculation
WHERE crn = ANY($1)
ORDER BY crn, created_at DESC
ON CONFLICT (crn) DO UPDATE SET
	calculation_id = EXCLUDED.calculation_id,
	protect_level = EXCLUDED.protect_level,
	change_level = EXCLUDED.change_level,
	created_at = EXCLUDED.created_at
WHERE tier_summary.created_at <= EXCLUDED.created_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func calculationArgs(c *model.TierCalculation) ([]any, error) {
	pb, err := json.Marshal(c.Protect.Breakdown)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal protect breakdown")
	}
	cb, err := json.Marshal(c.Change.Breakdown)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal change breakdown")
	}
	return []any{
		c.ID, c.CRN, c.CreatedAt.UTC(),
		string(c.Protect.Level), c.Protect.Score, pb,
		int(c.Change.Level), c.Change.Score, cb,
		c.ChangeReason, c.Trigger, c.IdempotencyKey,
	}, nil
}

func (s *PostgresStore) AppendCalculation(ctx context.Context, calc *model.TierCalculation) error {
	args, err := calculationArgs(calc)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, pgInsertCalculation, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert calculation for %s", calc.CRN)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateCalculation
	}

	if _, err := tx.Exec(ctx, pgUpsertSummary,
		calc.CRN, calc.ID, string(calc.Protect.Level), int(calc.Change.Level), calc.CreatedAt.UTC(),
	); err != nil {
		return eris.Wrapf(err, "postgres: upsert summary for %s", calc.CRN)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit append")
}

func (s *PostgresStore) AppendCalculations(ctx context.Context, calcs []model.TierCalculation) (int64, error) {
	if len(calcs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(calcs))
	crns := make([]string, 0, len(calcs))
	seen := make(map[string]bool, len(calcs))
	for i := range calcs {
		args, err := calculationArgs(&calcs[i])
		if err != nil {
			return 0, err
		}
		rows = append(rows, args)
		if !seen[calcs[i].CRN] {
			seen[calcs[i].CRN] = true
			crns = append(crns, calcs[i].CRN)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin batch append")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := db.InsertStaged(ctx, tx, db.StageConfig{
		Table:        "tier_calculation",
		Columns:      calculationColumnList,
		ConflictKeys: []string{"idempotency_key"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: batch append")
	}

	if _, err := tx.Exec(ctx, pgRefreshSummaries, crns); err != nil {
		return 0, eris.Wrap(err, "postgres: refresh summaries")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit batch append")
	}
	return n, nil
}

func (s *PostgresStore) DeleteCalculations(ctx context.Context, crn string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin delete")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM tier_summary WHERE crn = $1`, crn); err != nil {
		return 0, eris.Wrapf(err, "postgres: delete summary for %s", crn)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM tier_calculation WHERE crn = $1`, crn)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete calculations for %s", crn)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit delete")
	}
	return tag.RowsAffected(), nil
}

func scanCalculation(row pgx.Row) (*model.TierCalculation, error) {
	var (
		c                   model.TierCalculation
		protectLevel        string
		changeLevel         int
		protectBD, changeBD []byte
	)
	err := row.Scan(
		&c.ID, &c.CRN, &c.CreatedAt,
		&protectLevel, &c.Protect.Score, &protectBD,
		&changeLevel, &c.Change.Score, &changeBD,
		&c.ChangeReason, &c.Trigger, &c.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}
	c.Protect.Level = model.ProtectLevel(protectLevel)
	c.Change.Level = model.ChangeLevel(changeLevel)
	c.CreatedAt = c.CreatedAt.UTC()
	if err := json.Unmarshal(protectBD, &c.Protect.Breakdown); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal protect breakdown")
	}
	if err := json.Unmarshal(changeBD, &c.Change.Breakdown); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal change breakdown")
	}
	return &c, nil
}

func (s *PostgresStore) LatestCalculation(ctx context.Context, crn string) (*model.TierCalculation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+calculationColumns+` FROM tier_calculation WHERE crn = $1 ORDER BY created_at DESC LIMIT 1`,
		crn,
	)
	c, err := scanCalculation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest calculation for %s", crn)
	}
	return c, nil
}

func (s *PostgresStore) GetCalculation(ctx context.Context, crn string, id uuid.UUID) (*model.TierCalculation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+calculationColumns+` FROM tier_calculation WHERE crn = $1 AND id = $2`,
		crn, id,
	)
	c, err := scanCalculation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get calculation %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCalculations(ctx context.Context, crn string, limit int) ([]model.TierCalculation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+calculationColumns+` FROM tier_calculation WHERE crn = $1 ORDER BY created_at DESC LIMIT $2`,
		crn, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list calculations for %s", crn)
	}
	defer rows.Close()

	var out []model.TierCalculation
	for rows.Next() {
		c, err := scanCalculation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan calculation")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate calculations")
}

func (s *PostgresStore) GetSummary(ctx context.Context, crn string) (*model.TierSummary, error) {
	var (
		sum          model.TierSummary
		protectLevel string
		changeLevel  int
	)
	err := s.pool.QueryRow(ctx,
		`SELECT crn, calculation_id, protect_level, change_level, created_at FROM tier_summary WHERE crn = $1`,
		crn,
	).Scan(&sum.CRN, &sum.CalculationID, &protectLevel, &changeLevel, &sum.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get summary for %s", crn)
	}
	sum.ProtectLevel = model.ProtectLevel(protectLevel)
	sum.ChangeLevel = model.ChangeLevel(changeLevel)
	sum.CreatedAt = sum.CreatedAt.UTC()
	return &sum, nil
}

func (s *PostgresStore) CountCalculationsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM tier_calculation WHERE created_at >= $1`,
		since.UTC(),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count calculations")
}

func (s *PostgresStore) TierDistribution(ctx context.Context) ([]TierCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT protect_level, change_level, count(*) FROM tier_summary GROUP BY protect_level, change_level ORDER BY protect_level, change_level`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: tier distribution")
	}
	defer rows.Close()

	var out []TierCount
	for rows.Next() {
		var (
			p string
			c int
			n int
		)
		if err := rows.Scan(&p, &c, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier distribution")
		}
		tier := model.Tier{Protect: model.ProtectLevel(p), Change: model.ChangeLevel(c)}
		out = append(out, TierCount{Tier: tier.String(), Count: n})
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate tier distribution")
}
