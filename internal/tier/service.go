// Package tier recalculates a subject's tier from upstream signals and
// persists it when it changes.
package tier

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tier-cli/internal/calculator"
	"github.com/sells-group/tier-cli/internal/model"
	"github.com/sells-group/tier-cli/internal/monitoring"
	"github.com/sells-group/tier-cli/internal/store"
	"github.com/sells-group/tier-cli/internal/upstream"
)

// RiskSource fetches protect inputs.
type RiskSource interface {
	FetchRisk(ctx context.Context, crn string) (model.RiskSignals, error)
}

// NeedSource fetches change inputs. A subject without a valid assessment is
// returned with HasValidAssessment false, not an error.
type NeedSource interface {
	FetchNeeds(ctx context.Context, crn string) (model.NeedSignals, error)
}

// ConvictionSource fetches the convictions the mandate is evaluated over.
type ConvictionSource interface {
	FetchConvictions(ctx context.Context, crn string) ([]model.Conviction, error)
}

// CurrentTierSource returns the tier case management currently holds.
type CurrentTierSource interface {
	CurrentTier(ctx context.Context, crn string) (*model.Tier, error)
}

// Upstream is every read the service makes. *upstream.Gateway implements it.
type Upstream interface {
	RiskSource
	NeedSource
	ConvictionSource
	CurrentTierSource
}

// CalculationStore is the part of the store the service writes through.
type CalculationStore interface {
	LatestCalculation(ctx context.Context, crn string) (*model.TierCalculation, error)
	AppendCalculation(ctx context.Context, calc *model.TierCalculation) error
	DeleteCalculations(ctx context.Context, crn string) (int64, error)
}

// Notifier announces a changed tier. Failures are logged and dropped.
type Notifier interface {
	Publish(ctx context.Context, crn string, calculationID uuid.UUID, t model.Tier) error
}

// Outcome is the result of one recalculation. Calculation is what was
// computed; it was persisted only when Changed is true.
type Outcome struct {
	Calculation *model.TierCalculation `json:"calculation"`
	Previous    *model.TierCalculation `json:"previous,omitempty"`
	Changed     bool                   `json:"changed"`
	Duplicate   bool                   `json:"duplicate,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source stamped on new calculations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics sets the telemetry instruments.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier sets where tier changes are announced.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// Service recalculates tiers.
type Service struct {
	upstream Upstream
	store    CalculationStore
	notifier Notifier
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// NewService creates a Service.
func NewService(up Upstream, st CalculationStore, opts ...Option) *Service {
	s := &Service{
		upstream: up,
		store:    st,
		metrics:  monitoring.NopMetrics(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type signals struct {
	risk        model.RiskSignals
	needs       model.NeedSignals
	convictions []model.Conviction
	current     *model.Tier
}

func (s *Service) fetch(ctx context.Context, crn string) (*signals, error) {
	var sig signals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sig.risk, err = s.upstream.FetchRisk(gctx, crn)
		return err
	})
	g.Go(func() error {
		var err error
		sig.needs, err = s.upstream.FetchNeeds(gctx, crn)
		return err
	})
	g.Go(func() error {
		var err error
		sig.convictions, err = s.upstream.FetchConvictions(gctx, crn)
		return err
	})
	g.Go(func() error {
		var err error
		sig.current, err = s.upstream.CurrentTier(gctx, crn)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &sig, nil
}

// Recalculate fetches signals for crn, computes its tier, and persists and
// announces it when it differs from the latest stored calculation or from
// the tier case management holds.
func (s *Service) Recalculate(ctx context.Context, crn string, src model.RecalculationSource) (*Outcome, error) {
	start := time.Now()
	log := zap.L().With(
		zap.String("component", "tier.service"),
		zap.String("crn", crn),
		zap.String("reason", src.ChangeReason()),
	)

	out, err := s.recalculate(ctx, crn, src, log)
	s.metrics.RecordRecalculation(ctx, outcomeLabel(out, err), src.Kind(), time.Since(start))
	if err != nil {
		kind := KindOf(err)
		if kind == KindUnexpected {
			log.Error("tier: recalculation failed", zap.String("kind", string(kind)), zap.Error(err))
		} else {
			log.Warn("tier: recalculation failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		return nil, err
	}

	log.Info("tier: recalculated",
		zap.String("tier", out.Calculation.Tier().String()),
		zap.Bool("changed", out.Changed),
		zap.Bool("duplicate", out.Duplicate),
	)
	return out, nil
}

func (s *Service) recalculate(ctx context.Context, crn string, src model.RecalculationSource, log *zap.Logger) (*Outcome, error) {
	fail := func(kind ErrorKind, err error) error {
		return &RecalculationError{Kind: kind, CRN: crn, Reason: src.ChangeReason(), Err: err}
	}

	sig, err := s.fetch(ctx, crn)
	if err != nil {
		if upstream.NotFoundFrom(err, upstream.ServiceDelius) {
			n, derr := s.store.DeleteCalculations(ctx, crn)
			if derr != nil {
				log.Error("tier: remove stale calculations", zap.Error(derr))
			} else if n > 0 {
				log.Info("tier: removed calculations for unknown subject", zap.Int64("deleted", n))
			}
		}
		return nil, fail(classify(err), err)
	}

	sig.needs.HasNoMandate = calculator.HasNoMandate(sig.convictions)
	protect := calculator.Protect(sig.risk)
	change := calculator.Change(sig.needs)

	latest, err := s.store.LatestCalculation(ctx, crn)
	if err != nil {
		return nil, fail(KindUnexpected, err)
	}

	anchor := ""
	if latest != nil {
		anchor = latest.ID.String()
	}
	calc := &model.TierCalculation{
		ID:             uuid.New(),
		CRN:            crn,
		CreatedAt:      s.now().UTC(),
		Protect:        protect,
		Change:         change,
		ChangeReason:   src.ChangeReason(),
		Trigger:        src.Kind(),
		IdempotencyKey: model.IdempotencyKey(crn, anchor, protect, change),
	}

	out := &Outcome{Calculation: calc, Previous: latest}
	if !changed(calc, latest, sig.current) {
		return out, nil
	}

	if err := s.store.AppendCalculation(ctx, calc); err != nil {
		if errors.Is(err, store.ErrDuplicateCalculation) {
			out.Duplicate = true
			return out, nil
		}
		return nil, fail(KindUnexpected, err)
	}
	out.Changed = true

	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, crn, calc.ID, calc.Tier()); err != nil {
			s.metrics.RecordNotifyFailure(ctx)
			log.Warn("tier: notify change", zap.String("calculation_id", calc.ID.String()), zap.Error(err))
		}
	}
	return out, nil
}

// changed reports whether calc must be written. The external tier is
// compared against the latest stored calculation so drift in case
// management is repaired even when local levels are stable.
func changed(calc, latest *model.TierCalculation, external *model.Tier) bool {
	if latest == nil || !calc.SameLevels(latest) {
		return true
	}
	return external == nil || *external != latest.Tier()
}

func outcomeLabel(out *Outcome, err error) string {
	if err != nil {
		switch KindOf(err) {
		case KindUpstreamNotFound:
			return monitoring.OutcomeNotFound
		case KindUpstreamTransient:
			return monitoring.OutcomeTransient
		default:
			return monitoring.OutcomeUnexpected
		}
	}
	switch {
	case out.Duplicate:
		return monitoring.OutcomeDuplicate
	case out.Changed:
		return monitoring.OutcomeChanged
	default:
		return monitoring.OutcomeUnchanged
	}
}
