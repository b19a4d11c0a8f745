package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tier-cli/internal/config"
	"github.com/sells-group/tier-cli/internal/resilience"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		DLQDepthThreshold: 10,
		MinCalculations:   5,
	})

	snap := &MetricsSnapshot{
		Calculations:  50,
		DLQDepth:      2,
		LookbackHours: 24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_DLQBacklog(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{DLQDepthThreshold: 10})

	alerts := a.Evaluate(&MetricsSnapshot{DLQDepth: 12, LookbackHours: 24})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDLQBacklog, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "12 recalculation triggers")
}

func TestAlerter_Evaluate_CircuitOpen(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(&MetricsSnapshot{
		Circuits: []resilience.ServiceState{
			{Service: "assessment", State: "closed"},
			{Service: "delius", State: "open"},
		},
		OpenCircuits: 1,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCircuitOpen, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "delius")
	assert.NotContains(t, alerts[0].Message, "assessment")
}

func TestAlerter_Evaluate_CalculationStall(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MinCalculations: 100})

	alerts := a.Evaluate(&MetricsSnapshot{Calculations: 3, LookbackHours: 6})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCalculationStall, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "only 3 calculations written in last 6h")
}

func TestAlerter_Evaluate_ThresholdsDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(&MetricsSnapshot{DLQDepth: 1000, Calculations: 0})
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, AlertDLQBacklog, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertDLQBacklog, Severity: "high", Message: "backlog"},
		{Type: AlertDLQBacklog, Severity: "high", Message: "backlog again"},
	})

	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertCircuitOpen}})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertCircuitOpen}}))
}
