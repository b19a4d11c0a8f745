package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tier-cli/internal/model"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// Pragmas are per connection and SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tier_calculation (
	id                TEXT PRIMARY KEY,
	crn               TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	protect_level     TEXT NOT NULL,
	protect_score     INTEGER NOT NULL CHECK (protect_score >= 0),
	protect_breakdown TEXT NOT NULL,
	change_level      INTEGER NOT NULL,
	change_score      INTEGER NOT NULL CHECK (change_score >= 0),
	change_breakdown  TEXT NOT NULL,
	change_reason     TEXT NOT NULL,
	trigger_kind      TEXT NOT NULL,
	idempotency_key   TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_tier_calculation_crn_created ON tier_calculation(crn, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tier_calculation_created ON tier_calculation(created_at);

CREATE TABLE IF NOT EXISTS tier_summary (
	crn            TEXT PRIMARY KEY,
	calculation_id TEXT NOT NULL,
	protect_level  TEXT NOT NULL,
	change_level   INTEGER NOT NULL,
	created_at     TEXT NOT NULL
);
`

const sqliteInsertCalculation = `INSERT INTO tier_calculation (` + calculationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(idempotency_key) DO NOTHING`

const sqliteUpsertSummary = `INSERT INTO tier_summary (crn, calculation_id, protect_level, change_level, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(crn) DO UPDATE SET
	calculation_id = excluded.calculation_id,
	protect_level = excluded.protect_level,
	change_level = excluded.change_level,
	created_at = excluded.created_at
WHERE excluded.created_at >= tier_summary.created_at`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

// insertOne writes calc and its summary inside tx. It reports false when
// the idempotency key already exists.
func (s *SQLiteStore) insertOne(ctx context.Context, tx *sql.Tx, calc *model.TierCalculation) (bool, error) {
	pb, err := json.Marshal(calc.Protect.Breakdown)
	if err != nil {
		return false, eris.Wrap(err, "store: marshal protect breakdown")
	}
	cb, err := json.Marshal(calc.Change.Breakdown)
	if err != nil {
		return false, eris.Wrap(err, "store: marshal change breakdown")
	}
	created := formatTime(calc.CreatedAt)

	res, err := tx.ExecContext(ctx, sqliteInsertCalculation,
		calc.ID.String(), calc.CRN, created,
		string(calc.Protect.Level), calc.Protect.Score, string(pb),
		int(calc.Change.Level), calc.Change.Score, string(cb),
		calc.ChangeReason, calc.Trigger, calc.IdempotencyKey,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert calculation for %s", calc.CRN)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, sqliteUpsertSummary,
		calc.CRN, calc.ID.String(), string(calc.Protect.Level), int(calc.Change.Level), created,
	); err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert summary for %s", calc.CRN)
	}
	return true, nil
}

func (s *SQLiteStore) AppendCalculation(ctx context.Context, calc *model.TierCalculation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	inserted, err := s.insertOne(ctx, tx, calc)
	if err != nil {
		return err
	}
	if !inserted {
		return ErrDuplicateCalculation
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

func (s *SQLiteStore) AppendCalculations(ctx context.Context, calcs []model.TierCalculation) (int64, error) {
	if len(calcs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin batch append")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for i := range calcs {
		inserted, err := s.insertOne(ctx, tx, &calcs[i])
		if err != nil {
			return 0, err
		}
		if inserted {
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit batch append")
	}
	return n, nil
}

func (s *SQLiteStore) DeleteCalculations(ctx context.Context, crn string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin delete")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM tier_summary WHERE crn = ?`, crn); err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete summary for %s", crn)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tier_calculation WHERE crn = ?`, crn)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete calculations for %s", crn)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit delete")
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteCalculation(row scannable) (*model.TierCalculation, error) {
	var (
		c                   model.TierCalculation
		id, created         string
		protectLevel        string
		changeLevel         int
		protectBD, changeBD string
	)
	err := row.Scan(
		&id, &c.CRN, &created,
		&protectLevel, &c.Protect.Score, &protectBD,
		&changeLevel, &c.Change.Score, &changeBD,
		&c.ChangeReason, &c.Trigger, &c.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse calculation id %q", id)
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	c.Protect.Level = model.ProtectLevel(protectLevel)
	c.Change.Level = model.ChangeLevel(changeLevel)
	if err := json.Unmarshal([]byte(protectBD), &c.Protect.Breakdown); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal protect breakdown")
	}
	if err := json.Unmarshal([]byte(changeBD), &c.Change.Breakdown); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal change breakdown")
	}
	return &c, nil
}

func (s *SQLiteStore) LatestCalculation(ctx context.Context, crn string) (*model.TierCalculation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+calculationColumns+` FROM tier_calculation WHERE crn = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		crn,
	)
	c, err := scanSQLiteCalculation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest calculation for %s", crn)
	}
	return c, nil
}

func (s *SQLiteStore) GetCalculation(ctx context.Context, crn string, id uuid.UUID) (*model.TierCalculation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+calculationColumns+` FROM tier_calculation WHERE crn = ? AND id = ?`,
		crn, id.String(),
	)
	c, err := scanSQLiteCalculation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get calculation %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCalculations(ctx context.Context, crn string, limit int) ([]model.TierCalculation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+calculationColumns+` FROM tier_calculation WHERE crn = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		crn, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list calculations for %s", crn)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.TierCalculation
	for rows.Next() {
		c, err := scanSQLiteCalculation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan calculation")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate calculations")
}

func (s *SQLiteStore) GetSummary(ctx context.Context, crn string) (*model.TierSummary, error) {
	var (
		sum          model.TierSummary
		id, created  string
		protectLevel string
		changeLevel  int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT crn, calculation_id, protect_level, change_level, created_at FROM tier_summary WHERE crn = ?`,
		crn,
	).Scan(&sum.CRN, &id, &protectLevel, &changeLevel, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get summary for %s", crn)
	}
	if sum.CalculationID, err = uuid.Parse(id); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse calculation id %q", id)
	}
	if sum.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	sum.ProtectLevel = model.ProtectLevel(protectLevel)
	sum.ChangeLevel = model.ChangeLevel(changeLevel)
	return &sum, nil
}

func (s *SQLiteStore) CountCalculationsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM tier_calculation WHERE created_at >= ?`,
		formatTime(since),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count calculations")
}

func (s *SQLiteStore) TierDistribution(ctx context.Context) ([]TierCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT protect_level, change_level, count(*) FROM tier_summary GROUP BY protect_level, change_level ORDER BY protect_level, change_level`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: tier distribution")
	}
	defer rows.Close() //nolint:errcheck

	var out []TierCount
	for rows.Next() {
		var (
			p string
			c int
			n int
		)
		if err := rows.Scan(&p, &c, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier distribution")
		}
		tier := model.Tier{Protect: model.ProtectLevel(p), Change: model.ChangeLevel(c)}
		out = append(out, TierCount{Tier: tier.String(), Count: n})
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate tier distribution")
}
