package override

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tier-cli/internal/model"
	"github.com/sells-group/tier-cli/internal/monitoring"
)

// ReasonUpload is the change reason stored on override calculations.
const ReasonUpload = "OVERRIDE_UPLOAD"

// RuleOverride is the breakdown key carrying an operator-supplied score.
const RuleOverride = "OVERRIDE"

const chunkSize = 1000

// Writer is the store capability the importer needs.
type Writer interface {
	AppendCalculations(ctx context.Context, calcs []model.TierCalculation) (int64, error)
}

// Result summarises an import.
type Result struct {
	BatchID    string     `json:"batch_id"`
	Rows       int        `json:"rows"`
	Written    int64      `json:"written"`
	Skipped    int64      `json:"skipped"`
	Superseded int        `json:"superseded"`
	Errors     []RowError `json:"errors,omitempty"`
}

// Importer writes override rows as calculations.
type Importer struct {
	store   Writer
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewImporter creates an importer. A nil metrics records nothing.
func NewImporter(st Writer, metrics *monitoring.Metrics) *Importer {
	if metrics == nil {
		metrics = monitoring.NopMetrics()
	}
	return &Importer{store: st, metrics: metrics, now: time.Now}
}

// BatchID derives a stable identifier from file content so re-importing the
// same file writes nothing new.
func BatchID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Import writes parsed rows tagged with batchID. When a crn appears more
// than once the last row wins.
func (im *Importer) Import(ctx context.Context, parsed *Parsed, batchID string) (*Result, error) {
	if batchID == "" {
		return nil, eris.New("override: batch id is required")
	}
	log := zap.L().With(zap.String("component", "override"), zap.String("batch_id", batchID))

	res := &Result{BatchID: batchID, Rows: len(parsed.Rows), Errors: parsed.Errors}
	src := model.OtherRecalculation{Type: ReasonUpload}
	anchor := "override:" + batchID
	created := im.now().UTC()

	last := make(map[string]int, len(parsed.Rows))
	for i, row := range parsed.Rows {
		last[row.CRN] = i
	}

	calcs := make([]model.TierCalculation, 0, len(last))
	for i, row := range parsed.Rows {
		if last[row.CRN] != i {
			res.Superseded++
			continue
		}
		protect := model.ProtectResult{
			Level:     row.Tier.Protect,
			Score:     row.ProtectScore,
			Breakdown: model.Breakdown{RuleOverride: row.ProtectScore},
		}
		change := model.ChangeResult{
			Level:     row.Tier.Change,
			Score:     row.ChangeScore,
			Breakdown: model.Breakdown{RuleOverride: row.ChangeScore},
		}
		calcs = append(calcs, model.TierCalculation{
			ID:             uuid.New(),
			CRN:            row.CRN,
			CreatedAt:      created,
			Protect:        protect,
			Change:         change,
			ChangeReason:   src.ChangeReason(),
			Trigger:        src.Kind(),
			IdempotencyKey: model.IdempotencyKey(row.CRN, anchor, protect, change),
		})
	}

	for start := 0; start < len(calcs); start += chunkSize {
		end := min(start+chunkSize, len(calcs))
		n, err := im.store.AppendCalculations(ctx, calcs[start:end])
		if err != nil {
			im.metrics.RecordOverrides(ctx, res.Written, res.Skipped)
			return res, eris.Wrapf(err, "override: write rows %d-%d", start, end)
		}
		res.Written += n
		res.Skipped += int64(end-start) - n
	}

	im.metrics.RecordOverrides(ctx, res.Written, res.Skipped)
	log.Info("override: import complete",
		zap.Int("rows", res.Rows),
		zap.Int64("written", res.Written),
		zap.Int64("skipped", res.Skipped),
		zap.Int("superseded", res.Superseded),
		zap.Int("invalid", len(res.Errors)),
	)
	return res, nil
}
