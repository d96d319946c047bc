package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/resilience"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Config {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &Config{
		OrderServiceURL:   server.URL,
		QualityServiceURL: server.URL,
		LaborServiceURL:   server.URL + "/",
		Timeout:           2 * time.Second,
	}
}

func TestOrderServiceClient_GetPendingOrders(t *testing.T) {
	cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/orders", r.URL.Path)
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"orderId":"ORD-1","modelRef":"verite","priority":"rush","status":"pending"},
			{"orderId":"ORD-2","modelRef":"atrium","priority":"bogus","status":"pending","options":{"wood":"cherry"}}
		],"totalItems":2}`))
	})

	orders, err := NewOrderServiceClient(cfg, nil, nil).GetPendingOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, domain.PriorityRush, orders[0].Priority)
	assert.Equal(t, domain.PriorityStandard, orders[1].Priority)
	assert.Equal(t, "cherry", orders[1].Options["wood"])
	assert.True(t, orders[0].IsPending())
}

func TestQualityServiceClient_GetOpenQualityStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    domain.QualityStatus
		wantErr bool
	}{
		{name: "reported status", status: http.StatusOK, body: `{"status":"critical","openIssues":2}`, want: domain.QualityCritical},
		{name: "unknown stage is good", status: http.StatusNotFound, body: `{}`, want: domain.QualityGood},
		{name: "invalid status", status: http.StatusOK, body: `{"status":"meh"}`, wantErr: true},
		{name: "client error", status: http.StatusBadRequest, body: `bad`, wantErr: true},
		{name: "server error", status: http.StatusBadGateway, body: `down`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/batches/batch-1/stages/sanding/quality", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := NewQualityServiceClient(cfg, nil, nil).GetOpenQualityStatus(context.Background(), "batch-1", domain.StageSanding)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLaborServiceClient_GetActiveWorkers(t *testing.T) {
	cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workers", r.URL.Path)
		assert.Equal(t, "sanding", r.URL.Query().Get("specialization"))
		assert.Equal(t, "2026-03-02", r.URL.Query().Get("availableOn"))
		_, _ = w.Write([]byte(`{"data":[
			{"workerId":"W-1","role":"worker","specializations":["sanding","laser_cutting"],"active":true,"available":true,
			 "performance":{"qualityPassRate":0.95,"avgMinutesPerUnit":40,"sampleSize":12},"openAssignments":1},
			{"workerId":"W-2","specializations":["sanding"],"active":false,"available":true},
			{"workerId":"W-3","specializations":["finishing"],"active":true,"available":true}
		]}`))
	})

	workers, err := NewLaborServiceClient(cfg, nil, nil).GetActiveWorkers(context.Background(), domain.WorkerFilter{
		Specialization:   domain.StageSanding,
		AvailabilityDate: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "W-1", workers[0].WorkerID)
	assert.Equal(t, []domain.Stage{domain.StageSanding}, workers[0].Specializations)
	assert.Equal(t, 0.95, workers[0].Performance.QualityPassRate)
	assert.Equal(t, 1, workers[0].OpenAssignments)
}

func TestLaborServiceClient_GetWorker(t *testing.T) {
	cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/workers/W-1" {
			_, _ = w.Write([]byte(`{"workerId":"W-1","specializations":["finishing"],"active":true,"available":false}`))
			return
		}
		http.NotFound(w, r)
	})
	client := NewLaborServiceClient(cfg, nil, nil)

	worker, err := client.GetWorker(context.Background(), "W-1", time.Time{})
	require.NoError(t, err)
	require.NotNil(t, worker)
	assert.Equal(t, "unavailable", worker.IneligibilityReason())

	missing, err := client.GetWorker(context.Background(), "W-9", time.Time{})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestServiceClient_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := NewQualityServiceClient(cfg, nil, nil)

	for i := 0; i < int(resilience.DefaultFailureThreshold); i++ {
		_, err := client.GetOpenQualityStatus(context.Background(), "batch-1", domain.StageIntake)
		require.Error(t, err)
	}

	_, err := client.GetOpenQualityStatus(context.Background(), "batch-1", domain.StageIntake)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(resilience.DefaultFailureThreshold), calls.Load())
}

func TestServiceClient_NotFoundDoesNotTripCircuit(t *testing.T) {
	cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	client := NewQualityServiceClient(cfg, nil, nil)

	for i := 0; i < int(resilience.DefaultFailureThreshold)+2; i++ {
		status, err := client.GetOpenQualityStatus(context.Background(), "batch-1", domain.StageIntake)
		require.NoError(t, err)
		assert.Equal(t, domain.QualityGood, status)
	}
}
