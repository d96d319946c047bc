package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/api"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/application"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/changefeed"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/changes"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/messaging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/roster"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/sqlite"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/contracts/openapi"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/idempotency"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/outbox"
)

const testRoster = `
[[workers]]
id = "W-1"
name = "Ada"
specializations = ["sanding"]
active = true
available = true

[workers.performance]
quality_pass_rate = 0.9
avg_minutes_per_unit = 40.0
sample_size = 25

[[workers]]
id = "W-2"
name = "Grace"
role = "supervisor"
specializations = ["sanding", "finishing"]
active = true
available = true

[workers.performance]
quality_pass_rate = 0.8
avg_minutes_per_unit = 60.0
sample_size = 10

[[orders]]
order_id = "ORD-1"
priority = "rush"

[[orders]]
order_id = "ORD-2"

[[orders]]
order_id = "ORD-3"
priority = "expedite"
`

type actorHeaders struct {
	id   string
	role string
}

var (
	supervisor = &actorHeaders{id: "SUP-1", role: "supervisor"}
	workerOne  = &actorHeaders{id: "W-1", role: "worker"}
)

type testEnv struct {
	router    *gin.Engine
	bus       *changefeed.Bus
	store     *sqlite.Store
	pipeline  *application.PipelineService
	publisher *outbox.Publisher
	contract  *openapi.Validator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	logger := logging.NewNop()
	m := metrics.New(metrics.DefaultConfig("test"))

	store, err := sqlite.Open(ctx, sqlite.Config{Path: ":memory:", Builder: changes.NewBuilder(nil), Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	shopFloor, err := roster.Parse(strings.NewReader(testRoster))
	require.NoError(t, err)

	appStore := application.Store{
		Batches:     sqlite.NewBatchRepository(store),
		Assignments: sqlite.NewAssignmentRepository(store),
		WorkerLoads: sqlite.NewWorkerLoadRepository(store),
		Transactor:  store,
	}
	bus := changefeed.NewBus(16, m, logger)
	t.Cleanup(bus.Close)

	pipeline := application.NewPipelineService(appStore, shopFloor, shopFloor, logger, application.WithMetrics(m))
	assignments := application.NewAssignmentService(appStore, shopFloor, messaging.NewLogNotifier(logger), logger, application.WithMetrics(m))

	contract, err := openapi.NewValidatorFromBytes(api.OpenAPISpec)
	require.NoError(t, err)

	projection := changefeed.NewPipelineProjection(nil)
	router := newRouter(&routerDeps{
		Pipeline:    pipeline,
		Assignments: assignments,
		Bus:         bus,
		Projection:  projection,
		Idempotency: sqlite.NewIdempotencyRepository(store),
		Metrics:     m,
		Logger:      logger,
		Ready:       store.HealthCheck,
	})

	return &testEnv{
		router:    router,
		bus:       bus,
		store:     store,
		pipeline:  pipeline,
		publisher: outbox.NewPublisher(sqlite.NewOutboxRepository(store), changefeed.NewBusProducer(bus), logger, m, nil),
		contract:  contract,
	}
}

func newRequest(t *testing.T, method, path string, raw []byte, actor *actorHeaders, headers map[string]string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewReader(raw))
	require.NoError(t, err)
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req.Header.Set("X-Actor-ID", actor.id)
		req.Header.Set("X-Actor-Role", actor.role)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

// call serves one request and checks the response against the OpenAPI
// contract. Successful requests are checked against the contract as well.
func (e *testEnv) call(t *testing.T, method, path string, payload any, actor *actorHeaders, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, newRequest(t, method, path, raw, actor, headers))

	if rec.Code < http.StatusBadRequest {
		require.NoError(t, e.contract.ValidateRequest(newRequest(t, method, path, raw, actor, headers)))
	}
	resp := rec.Result()
	require.NoError(t, e.contract.ValidateResponse(newRequest(t, method, path, raw, actor, headers), resp),
		"response %d %s", rec.Code, rec.Body.String())
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, rec)["code"].(string)
}

func (e *testEnv) createBatch(t *testing.T, orderIDs ...string) application.BatchDTO {
	t.Helper()
	rec := e.call(t, http.MethodPost, "/api/v1/batches", map[string]any{"orderIds": orderIDs}, supervisor, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[application.BatchDTO](t, rec)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_ENV_KEY", "value")
	assert.Equal(t, "value", getEnv("TEST_ENV_KEY", "default"))
	assert.Equal(t, "default", getEnv("MISSING_KEY", "default"))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9000")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/production.db")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("KAFKA_CONSUMER_GROUP", "production-test")
	t.Setenv("WORKER_ROSTER_PATH", "/etc/production/roster.toml")

	cfg := loadConfig()
	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, storeSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/production.db", cfg.SQLitePath)
	require.NotNil(t, cfg.Kafka)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "production-test", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, "/etc/production/roster.toml", cfg.RosterPath)
}

func TestLoadConfig_WithoutBrokersStaysInProcess(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	cfg := loadConfig()
	assert.Nil(t, cfg.Kafka)
	assert.Equal(t, storeMongoDB, cfg.StoreDriver)
	assert.Equal(t, "production_db", cfg.MongoDB.Database)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rec := env.call(t, http.MethodGet, "/health", nil, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.call(t, http.MethodGet, "/ready", nil, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestPipelineScenario walks a batch from intake through auto-assignment and
// a move to sanding, then locks it with a critical quality result.
func TestPipelineScenario(t *testing.T) {
	env := newTestEnv(t)

	batch := env.createBatch(t, "ORD-1", "ORD-2")
	assert.Equal(t, "B-1", batch.BatchNumber)
	assert.Equal(t, "intake", batch.CurrentStage)
	assert.Equal(t, "rush", batch.Priority)
	assert.Equal(t, "good", batch.QualityStatus)

	rec := env.call(t, http.MethodPost, "/api/v1/batches/"+batch.ID+"/auto-assign", map[string]any{}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[application.AutoAssignResultDTO](t, rec)
	require.NotNil(t, result.Assignments["sanding"])
	assert.Equal(t, "W-1", *result.Assignments["sanding"])
	require.NotNil(t, result.Assignments["finishing"])
	assert.Equal(t, "W-2", *result.Assignments["finishing"])
	assert.Nil(t, result.Assignments["intake"])
	assert.Contains(t, result.Unassigned, "intake")
	assert.Contains(t, result.Unassigned, "shipping")

	rec = env.call(t, http.MethodPost, "/api/v1/batches/"+batch.ID+"/transition", map[string]any{"toStage": "sanding"}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[application.BatchDTO](t, rec)
	assert.Equal(t, "sanding", moved.CurrentStage)
	assert.Equal(t, "Sanding", moved.CurrentStageName)
	assert.Greater(t, moved.Version, batch.Version)

	rec = env.call(t, http.MethodGet, "/api/v1/pipeline", nil, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[application.PipelineDTO](t, rec)
	require.Len(t, view.Stages, 7)
	assert.Equal(t, "sanding", view.Stages[1].Stage)
	require.Len(t, view.Stages[1].Batches, 1)
	assert.Equal(t, batch.ID, view.Stages[1].Batches[0].ID)
	assert.Empty(t, view.Stages[0].Batches)

	rec = env.call(t, http.MethodPost, "/api/v1/batches/"+batch.ID+"/quality-checks",
		map[string]any{"stage": "sanding", "status": "critical"}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "critical", decode[application.BatchDTO](t, rec).QualityStatus)

	rec = env.call(t, http.MethodPost, "/api/v1/batches/"+batch.ID+"/transition", map[string]any{"toStage": "finishing"}, supervisor, nil)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "QUALITY_BLOCKED", errorCodeOf(t, rec))
}

func TestTransition_Rejections(t *testing.T) {
	env := newTestEnv(t)
	batch := env.createBatch(t, "ORD-1")
	path := "/api/v1/batches/" + batch.ID + "/transition"

	tests := []struct {
		name   string
		body   map[string]any
		actor  *actorHeaders
		status int
		code   string
	}{
		{name: "same stage", body: map[string]any{"toStage": "intake"}, actor: supervisor, status: http.StatusUnprocessableEntity, code: "INVALID_TRANSITION"},
		{name: "unknown stage", body: map[string]any{"toStage": "polishing"}, actor: supervisor, status: http.StatusBadRequest, code: "VALIDATION_ERROR"},
		{name: "missing stage", body: map[string]any{}, actor: supervisor, status: http.StatusBadRequest, code: "VALIDATION_ERROR"},
		{name: "worker role", body: map[string]any{"toStage": "sanding"}, actor: workerOne, status: http.StatusForbidden, code: "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.call(t, http.MethodPost, path, tt.body, tt.actor, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCodeOf(t, rec))
		})
	}

	rec := env.call(t, http.MethodPost, "/api/v1/batches/missing/transition", map[string]any{"toStage": "sanding"}, supervisor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransition_AcceptsStageDisplayName(t *testing.T) {
	env := newTestEnv(t)
	batch := env.createBatch(t, "ORD-1")

	rec := env.call(t, http.MethodPost, "/api/v1/batches/"+batch.ID+"/transition",
		map[string]any{"toStage": "Sanding"}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sanding", decode[application.BatchDTO](t, rec).CurrentStage)

	rec = env.call(t, http.MethodPost, "/api/v1/batches/"+batch.ID+"/transition",
		map[string]any{"toStage": "Final Assembly"}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "final_assembly", decode[application.BatchDTO](t, rec).CurrentStage)

	rec = env.call(t, http.MethodGet, "/api/v1/stages/Sanding/rankings", nil, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[application.RankingsDTO](t, rec).Rankings, 2)
}

func TestActorHeadersRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.call(t, http.MethodGet, "/api/v1/pipeline", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.call(t, http.MethodGet, "/api/v1/pipeline", nil, &actorHeaders{id: "X", role: "owner"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateBatch_OrderAlreadyBatched(t *testing.T) {
	env := newTestEnv(t)
	env.createBatch(t, "ORD-1")

	rec := env.call(t, http.MethodPost, "/api/v1/batches", map[string]any{"orderIds": []string{"ORD-1", "ORD-3"}}, supervisor, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "CONFLICT", errorCodeOf(t, rec))
}

func TestCreateBatch_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	headers := map[string]string{idempotency.HeaderIdempotencyKey: "create-ord-3"}
	body := map[string]any{"orderIds": []string{"ORD-3"}}

	first := env.call(t, http.MethodPost, "/api/v1/batches", body, supervisor, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := env.call(t, http.MethodPost, "/api/v1/batches", body, supervisor, headers)
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())

	assert.Equal(t, decode[application.BatchDTO](t, first).ID, decode[application.BatchDTO](t, second).ID)

	batches, err := env.pipeline.ActiveBatches(context.Background())
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}

func TestAssignAndCompleteWork(t *testing.T) {
	env := newTestEnv(t)
	batch := env.createBatch(t, "ORD-1")

	rec := env.call(t, http.MethodPost, "/api/v1/batches/"+batch.ID+"/assignments",
		map[string]any{"stage": "sanding", "workerId": "W-2"}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[application.AssignmentDTO](t, rec)

	// the slot is reassigned in place
	rec = env.call(t, http.MethodPost, "/api/v1/batches/"+batch.ID+"/assignments",
		map[string]any{"stage": "sanding", "workerId": "W-1"}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assignment := decode[application.AssignmentDTO](t, rec)
	assert.Equal(t, first.ID, assignment.ID)
	assert.Equal(t, "W-1", assignment.WorkerID)
	assert.Equal(t, "open", assignment.Status)

	rec = env.call(t, http.MethodGet, "/api/v1/batches/"+batch.ID+"/assignments", nil, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[application.AssignmentListDTO](t, rec).Assignments, 1)

	completePath := "/api/v1/assignments/" + assignment.ID + "/complete"
	rec = env.call(t, http.MethodPost, completePath, map[string]any{"outcome": "good"}, &actorHeaders{id: "W-2", role: "worker"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "only the assigned worker or a supervisor may complete")

	rec = env.call(t, http.MethodPost, completePath, map[string]any{"outcome": "good"}, workerOne, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	completed := decode[application.AssignmentDTO](t, rec)
	assert.Equal(t, "completed", completed.Status)
	assert.Equal(t, "good", completed.Outcome)
	assert.NotNil(t, completed.CompletedAt)

	rec = env.call(t, http.MethodPost, completePath, map[string]any{"outcome": "good"}, workerOne, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_COMPLETED", errorCodeOf(t, rec))

	rec = env.call(t, http.MethodPost, "/api/v1/assignments/unknown/complete", map[string]any{"outcome": "good"}, workerOne, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssign_UnknownWorker(t *testing.T) {
	env := newTestEnv(t)
	batch := env.createBatch(t, "ORD-2")

	rec := env.call(t, http.MethodPost, "/api/v1/batches/"+batch.ID+"/assignments",
		map[string]any{"stage": "sanding", "workerId": "W-404"}, supervisor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestReworkAndArchive(t *testing.T) {
	env := newTestEnv(t)
	batch := env.createBatch(t, "ORD-2")
	base := "/api/v1/batches/" + batch.ID

	rec := env.call(t, http.MethodPost, base+"/transition", map[string]any{"toStage": "finishing"}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.call(t, http.MethodPost, base+"/rework", map[string]any{"toStage": "shipping", "reason": "forward"}, supervisor, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.call(t, http.MethodPost, base+"/rework", map[string]any{"toStage": "sanding", "reason": "orange peel"}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sanding", decode[application.BatchDTO](t, rec).CurrentStage)

	rec = env.call(t, http.MethodPost, base+"/archive", nil, supervisor, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "only shipped batches may be archived")

	rec = env.call(t, http.MethodPost, base+"/transition", map[string]any{"toStage": "shipping"}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.call(t, http.MethodPost, base+"/archive", nil, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	archived := decode[application.BatchDTO](t, rec)
	assert.Equal(t, "archived", archived.Status)
	assert.NotNil(t, archived.ArchivedAt)

	// the orders are free again
	env.createBatch(t, "ORD-2")
}

func TestStagesAndRankings(t *testing.T) {
	env := newTestEnv(t)

	rec := env.call(t, http.MethodGet, "/api/v1/stages", nil, workerOne, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stages := decode[application.StageListDTO](t, rec)
	require.Len(t, stages.Stages, 7)
	assert.Equal(t, "Sub-Assembly", stages.Stages[3].Name)
	assert.True(t, stages.Stages[6].Terminal)

	rec = env.call(t, http.MethodGet, "/api/v1/stages/sanding/rankings?complexity=very_high", nil, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rankings := decode[application.RankingsDTO](t, rec)
	require.Len(t, rankings.Rankings, 2)
	assert.Equal(t, "W-1", rankings.Rankings[0].WorkerID)
	assert.InDelta(t, 235.0, rankings.Rankings[0].Score, 1e-9)
	assert.Equal(t, "W-2", rankings.Rankings[1].WorkerID)
	assert.InDelta(t, 230.0, rankings.Rankings[1].Score, 1e-9)
	assert.Equal(t, 20.0, rankings.Rankings[1].Factors.Complexity)

	rec = env.call(t, http.MethodGet, "/api/v1/stages/polishing/rankings", nil, supervisor, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLivePipelineFollowsChanges(t *testing.T) {
	env := newTestEnv(t)
	batch := env.createBatch(t, "ORD-1")

	projection := changefeed.NewPipelineProjection(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go followPipeline(ctx, env.bus, projection, env.pipeline.ActiveBatches, logging.NewNop())

	stageOf := func() string {
		for stage, group := range projection.Snapshot() {
			for _, b := range group {
				if b.ID == batch.ID {
					return string(stage)
				}
			}
		}
		return ""
	}
	assert.Eventually(t, func() bool { return stageOf() == "intake" }, time.Second, 5*time.Millisecond)

	rec := env.call(t, http.MethodPost, "/api/v1/batches/"+batch.ID+"/transition", map[string]any{"toStage": "sanding"}, supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env.publisher.ProcessOnce(ctx)

	assert.Eventually(t, func() bool { return stageOf() == "sanding" }, time.Second, 5*time.Millisecond)

	router := newRouter(&routerDeps{
		Pipeline:   env.pipeline,
		Bus:        env.bus,
		Projection: projection,
		Metrics:    metrics.New(metrics.DefaultConfig("test")),
		Logger:     logging.NewNop(),
		Ready:      func(context.Context) error { return nil },
	})
	liveRec := httptest.NewRecorder()
	router.ServeHTTP(liveRec, newRequest(t, http.MethodGet, "/api/v1/pipeline/live", nil, supervisor, nil))
	require.Equal(t, http.StatusOK, liveRec.Code)
	live := decode[application.PipelineDTO](t, liveRec)
	require.Len(t, live.Stages[1].Batches, 1)
	assert.Equal(t, batch.ID, live.Stages[1].Batches[0].ID)
}

func TestChangeStream(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := newRequest(t, http.MethodGet, server.URL+"/api/v1/changes/batches", nil, supervisor, nil)
	req = req.WithContext(ctx)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	assert.Eventually(t, func() bool { return env.bus.SubscriberCount(changefeed.EntityBatches) == 1 }, time.Second, 5*time.Millisecond)

	batch := env.createBatch(t, "ORD-3")
	env.publisher.ProcessOnce(ctx)

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event:"):
			eventLine = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:") && eventLine != "":
			dataLine = strings.TrimPrefix(line, "data:")
		}
	}

	assert.Equal(t, "insert", eventLine)
	var change changefeed.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(dataLine), &change))
	assert.Equal(t, batch.ID, change.EntityID)
	assert.Equal(t, changefeed.EntityBatches, change.Entity)
	assert.Equal(t, int64(1), change.Version)
}

func TestChangeStream_UnknownEntity(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, newRequest(t, http.MethodGet, "/api/v1/changes/widgets", nil, supervisor, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
