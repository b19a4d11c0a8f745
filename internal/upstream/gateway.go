package upstream

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/tier-cli/internal/model"
)

// DefaultAssessmentValidity is how long a completed assessment counts.
const DefaultAssessmentValidity = 55 * 7 * 24 * time.Hour

// Gateway assembles normalized signals from case management and the
// assessment service. Concurrent lookups for the same crn share one call.
type Gateway struct {
	delius     *DeliusClient
	assessment *AssessmentClient
	validity   time.Duration
	now        func() time.Time

	deliusCalls     singleflight.Group
	assessmentCalls singleflight.Group
}

// NewGateway creates a gateway. A zero validity uses
// DefaultAssessmentValidity; a nil clock uses time.Now.
func NewGateway(delius *DeliusClient, assessment *AssessmentClient, validity time.Duration, now func() time.Time) *Gateway {
	if validity <= 0 {
		validity = DefaultAssessmentValidity
	}
	if now == nil {
		now = time.Now
	}
	return &Gateway{delius: delius, assessment: assessment, validity: validity, now: now}
}

// shared runs fn once per key across concurrent callers. fn runs detached
// from any one caller's cancellation so a caller that gives up does not
// fail the others; each caller still returns early on its own ctx.
func shared[T any](ctx context.Context, group *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	ch := group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			var zero T
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

func (g *Gateway) details(ctx context.Context, crn string) (*TierDetails, error) {
	return shared(ctx, &g.deliusCalls, crn, func(ctx context.Context) (*TierDetails, error) {
		return g.delius.TierDetails(ctx, crn)
	})
}

func (g *Gateway) latestAssessment(ctx context.Context, crn string) (*AssessmentSummary, error) {
	return shared(ctx, &g.assessmentCalls, crn, func(ctx context.Context) (*AssessmentSummary, error) {
		return g.assessment.Latest(ctx, crn)
	})
}

// FetchRisk returns the risk signals for crn.
func (g *Gateway) FetchRisk(ctx context.Context, crn string) (model.RiskSignals, error) {
	d, err := g.details(ctx, crn)
	if err != nil {
		return model.RiskSignals{}, err
	}
	risk := d.Risk()
	if !risk.Female {
		return risk, nil
	}

	a, err := g.latestAssessment(ctx, crn)
	if err != nil {
		return model.RiskSignals{}, err
	}
	if a.Valid(g.now(), g.validity) {
		risk.AdditionalFactorsForWomen = a.AdditionalFactors()
	}
	return risk, nil
}

// FetchNeeds returns the need signals for crn. The mandate flag is left for
// the caller to set.
func (g *Gateway) FetchNeeds(ctx context.Context, crn string) (model.NeedSignals, error) {
	// Both lookups start together so the case-management call joins the one
	// the other fetches for this crn already have in flight.
	var (
		d *TierDetails
		a *AssessmentSummary
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		d, err = g.details(ectx, crn)
		return err
	})
	eg.Go(func() error {
		var err error
		a, err = g.latestAssessment(ectx, crn)
		return err
	})
	if err := eg.Wait(); err != nil {
		return model.NeedSignals{}, err
	}

	if !a.Valid(g.now(), g.validity) {
		return model.NeedSignals{}, nil
	}
	return model.NeedSignals{
		OGRS:               d.OGRSScore,
		Needs:              a.NeedSeverities(),
		HasValidAssessment: true,
	}, nil
}

// FetchConvictions returns the subject's convictions.
func (g *Gateway) FetchConvictions(ctx context.Context, crn string) ([]model.Conviction, error) {
	d, err := g.details(ctx, crn)
	if err != nil {
		return nil, err
	}
	return d.ConvictionList(), nil
}

// CurrentTier returns the tier case management currently holds, or nil.
func (g *Gateway) CurrentTier(ctx context.Context, crn string) (*model.Tier, error) {
	d, err := g.details(ctx, crn)
	if err != nil {
		return nil, err
	}
	return d.Tier(), nil
}
