package tier

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/tier-cli/internal/model"
)

// --- Upstream Mock ---

type mockUpstream struct {
	mock.Mock
}

func (m *mockUpstream) FetchRisk(ctx context.Context, crn string) (model.RiskSignals, error) {
	args := m.Called(ctx, crn)
	return args.Get(0).(model.RiskSignals), args.Error(1)
}

func (m *mockUpstream) FetchNeeds(ctx context.Context, crn string) (model.NeedSignals, error) {
	args := m.Called(ctx, crn)
	return args.Get(0).(model.NeedSignals), args.Error(1)
}

func (m *mockUpstream) FetchConvictions(ctx context.Context, crn string) ([]model.Conviction, error) {
	args := m.Called(ctx, crn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conviction), args.Error(1)
}

func (m *mockUpstream) CurrentTier(ctx context.Context, crn string) (*model.Tier, error) {
	args := m.Called(ctx, crn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tier), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) LatestCalculation(ctx context.Context, crn string) (*model.TierCalculation, error) {
	args := m.Called(ctx, crn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TierCalculation), args.Error(1)
}

func (m *mockStore) AppendCalculation(ctx context.Context, calc *model.TierCalculation) error {
	return m.Called(ctx, calc).Error(0)
}

func (m *mockStore) DeleteCalculations(ctx context.Context, crn string) (int64, error) {
	args := m.Called(ctx, crn)
	return args.Get(0).(int64), args.Error(1)
}

// --- Notifier Mock ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Publish(ctx context.Context, crn string, calculationID uuid.UUID, t model.Tier) error {
	return m.Called(ctx, crn, calculationID, t).Error(0)
}
