package tier

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tier-cli/internal/model"
)

// DefaultBatchConcurrency bounds RecalculateMany when no limit is given.
const DefaultBatchConcurrency = 8

// Failure is one subject a batch could not recalculate.
type Failure struct {
	CRN   string    `json:"crn"`
	Kind  ErrorKind `json:"kind"`
	Error string    `json:"error"`
}

// BatchReport summarises RecalculateMany.
type BatchReport struct {
	Total     int           `json:"total"`
	Changed   int           `json:"changed"`
	Unchanged int           `json:"unchanged"`
	Duplicate int           `json:"duplicate"`
	Failed    int           `json:"failed"`
	Failures  []Failure     `json:"failures,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RecalculateMany recalculates every crn with at most concurrency in flight.
// A failed subject is recorded on the report and never stops the batch.
// Subjects not started before ctx is done are reported as failures.
func (s *Service) RecalculateMany(ctx context.Context, crns []string, src model.RecalculationSource, concurrency int) *BatchReport {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	start := time.Now()
	report := &BatchReport{Total: len(crns)}

	var mu sync.Mutex
	record := func(crn string, out *Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			report.Failed++
			report.Failures = append(report.Failures, Failure{CRN: crn, Kind: KindOf(err), Error: err.Error()})
		case out.Duplicate:
			report.Duplicate++
		case out.Changed:
			report.Changed++
		default:
			report.Unchanged++
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for _, crn := range crns {
		if err := ctx.Err(); err != nil {
			record(crn, nil, &RecalculationError{Kind: KindUnexpected, CRN: crn, Reason: src.ChangeReason(), Err: err})
			continue
		}
		g.Go(func() error {
			out, err := s.Recalculate(ctx, crn, src)
			record(crn, out, err)
			return nil
		})
	}
	_ = g.Wait()

	report.Elapsed = time.Since(start)
	zap.L().Info("tier: batch complete",
		zap.String("reason", src.ChangeReason()),
		zap.Int("total", report.Total),
		zap.Int("changed", report.Changed),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report
}
