package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	apperrors "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/errors"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
)

type assignmentFixture struct {
	*pipelineFixture
	directory   *mockDirectory
	notifier    *mockNotifier
	assignments *AssignmentService
	batchID     string
}

func newAssignmentFixture(t *testing.T, workers ...domain.Worker) *assignmentFixture {
	t.Helper()
	pf := newPipelineFixture("ORD-1")
	f := &assignmentFixture{
		pipelineFixture: pf,
		directory:       &mockDirectory{workers: workers},
		notifier:        &mockNotifier{},
	}
	f.assignments = NewAssignmentService(pf.mem.store(), f.directory, f.notifier, testLogger(),
		WithClock(fixedClock()),
		WithIDGenerator(sequentialIDs("asg")),
	)
	f.batchID = pf.createBatch(t, "ORD-1").ID
	return f
}

func (f *assignmentFixture) assign(t *testing.T, stage domain.Stage, workerID string) *AssignmentDTO {
	t.Helper()
	dto, err := f.assignments.Assign(context.Background(), AssignCommand{
		BatchID: f.batchID, Stage: string(stage), WorkerID: workerID, Actor: supervisor,
	})
	require.NoError(t, err)
	return dto
}

func TestAssign(t *testing.T) {
	f := newAssignmentFixture(t, worker("W-1", 0.9, domain.StageSanding))

	dto := f.assign(t, domain.StageSanding, "W-1")

	assert.Equal(t, "asg-1", dto.ID)
	assert.Equal(t, f.batchID, dto.BatchID)
	assert.Equal(t, "sanding", dto.Stage)
	assert.Equal(t, "W-1", dto.WorkerID)
	assert.Equal(t, string(domain.AssignmentStatusOpen), dto.Status)
	assert.Equal(t, supervisor.ID, dto.AssignedBy)
	assert.Equal(t, 1, f.mem.load("W-1"))

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "W-1", f.notifier.sent[0].workerID)
	assert.Contains(t, f.notifier.sent[0].message, "Sanding")
	assert.Equal(t, "asg-1", f.notifier.sent[0].payload["assignmentId"])
}

func TestAssign_ReplacesHolder(t *testing.T) {
	f := newAssignmentFixture(t,
		worker("W-1", 0.9, domain.StageSanding),
		worker("W-2", 0.9, domain.StageSanding),
	)
	first := f.assign(t, domain.StageSanding, "W-1")

	second := f.assign(t, domain.StageSanding, "W-2")

	assert.Equal(t, first.ID, second.ID, "the slot keeps one assignment record")
	assert.Equal(t, "W-2", second.WorkerID)
	assert.Equal(t, 0, f.mem.load("W-1"))
	assert.Equal(t, 1, f.mem.load("W-2"))
	assert.Contains(t, f.mem.changeLog(), "production.assignment.reassigned")
}

func TestAssign_SameWorkerRestartsClock(t *testing.T) {
	f := newAssignmentFixture(t, worker("W-1", 0.9, domain.StageSanding))
	first := f.assign(t, domain.StageSanding, "W-1")

	again := f.assign(t, domain.StageSanding, "W-1")

	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.StartedAt.After(first.StartedAt))
	assert.Equal(t, 1, f.mem.load("W-1"), "capacity is not charged twice")
}

func TestAssign_Errors(t *testing.T) {
	inactive := worker("W-OFF", 0.9, domain.StageSanding)
	inactive.Active = false
	away := worker("W-AWAY", 0.9, domain.StageSanding)
	away.Available = false
	busy := worker("W-BUSY", 0.9, domain.StageSanding)
	busy.OpenAssignments = domain.MaxOpenAssignments

	tests := []struct {
		name     string
		stage    string
		workerID string
		actor    domain.Actor
		prepare  func(t *testing.T, f *assignmentFixture)
		code     string
		reason   string
	}{
		{name: "worker role is forbidden", stage: "sanding", workerID: "W-1", actor: floorHand, code: apperrors.CodeForbidden},
		{name: "unknown stage", stage: "varnish", workerID: "W-1", actor: supervisor, code: apperrors.CodeValidationError},
		{name: "unknown worker", stage: "sanding", workerID: "W-404", actor: supervisor, code: apperrors.CodeNotFound},
		{name: "inactive worker", stage: "sanding", workerID: "W-OFF", actor: supervisor, code: apperrors.CodeNotEligible, reason: "inactive"},
		{name: "unavailable worker", stage: "sanding", workerID: "W-AWAY", actor: supervisor, code: apperrors.CodeNotEligible, reason: "unavailable"},
		{name: "worker at capacity", stage: "sanding", workerID: "W-BUSY", actor: supervisor, code: apperrors.CodeNotEligible, reason: "at_capacity"},
		{
			name:     "store load at capacity",
			stage:    "sanding",
			workerID: "W-1",
			actor:    supervisor,
			prepare: func(t *testing.T, f *assignmentFixture) {
				f.mem.loads["W-1"] = domain.MaxOpenAssignments
			},
			code:   apperrors.CodeNotEligible,
			reason: "at_capacity",
		},
		{
			name:     "stage already passed",
			stage:    "intake",
			workerID: "W-1",
			actor:    supervisor,
			prepare: func(t *testing.T, f *assignmentFixture) {
				f.moveTo(t, f.batchID, domain.StageSanding)
			},
			code: apperrors.CodeInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAssignmentFixture(t, worker("W-1", 0.9, domain.StageSanding, domain.StageIntake), inactive, away, busy)
			if tt.prepare != nil {
				tt.prepare(t, f)
			}

			_, err := f.assignments.Assign(context.Background(), AssignCommand{
				BatchID: f.batchID, Stage: tt.stage, WorkerID: tt.workerID, Actor: tt.actor,
			})

			assertCode(t, err, tt.code)
			if tt.reason != "" {
				appErr, _ := apperrors.AsAppError(err)
				assert.Equal(t, tt.reason, appErr.Details["reason"])
			}
			assert.Empty(t, f.notifier.sent)
		})
	}
}

func TestAssign_ArchivedBatch(t *testing.T) {
	f := newAssignmentFixture(t, worker("W-1", 0.9, domain.StageShipping))
	f.moveTo(t, f.batchID, domain.StageShipping)
	_, err := f.service.ArchiveBatch(context.Background(), ArchiveBatchCommand{BatchID: f.batchID, Actor: supervisor})
	require.NoError(t, err)

	_, err = f.assignments.Assign(context.Background(), AssignCommand{
		BatchID: f.batchID, Stage: "shipping", WorkerID: "W-1", Actor: supervisor,
	})

	assertCode(t, err, apperrors.CodeNotFound)
}

func TestAssign_NotificationFailureDoesNotFail(t *testing.T) {
	f := newAssignmentFixture(t, worker("W-1", 0.9, domain.StageSanding))
	f.notifier.err = errors.New("pager offline")
	m := metrics.New(metrics.DefaultConfig("production-service-test"))
	f.assignments = NewAssignmentService(f.mem.store(), f.directory, f.notifier, testLogger(), WithMetrics(m))

	_, err := f.assignments.Assign(context.Background(), AssignCommand{
		BatchID: f.batchID, Stage: "sanding", WorkerID: "W-1", Actor: supervisor,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.mem.load("W-1"))
}

func TestAssign_ConcurrentSlotHasOneOpenAssignment(t *testing.T) {
	workers := []domain.Worker{
		worker("W-1", 0.9, domain.StageSanding),
		worker("W-2", 0.9, domain.StageSanding),
		worker("W-3", 0.9, domain.StageSanding),
		worker("W-4", 0.9, domain.StageSanding),
	}
	f := newAssignmentFixture(t, workers...)

	var wg sync.WaitGroup
	errs := make(chan error, len(workers))
	for _, w := range workers {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			_, err := f.assignments.Assign(context.Background(), AssignCommand{
				BatchID: f.batchID, Stage: "sanding", WorkerID: workerID, Actor: supervisor,
			})
			errs <- err
		}(w.WorkerID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := f.assignments.ListAssignments(context.Background(), ListAssignmentsQuery{BatchID: f.batchID})
	require.NoError(t, err)
	require.Len(t, list.Assignments, 1)

	total := 0
	for _, w := range workers {
		total += f.mem.load(w.WorkerID)
	}
	assert.Equal(t, 1, total, "only the last writer holds capacity")
	assert.Equal(t, 1, f.mem.load(list.Assignments[0].WorkerID))
}

func TestAutoAssignBatch(t *testing.T) {
	weak := worker("W-WEAK", 0.5, domain.StageSanding)
	strong := worker("W-STRONG", 0.95, domain.StageSanding)
	finisher := worker("W-FIN", 0.9, domain.StageFinishing)
	f := newAssignmentFixture(t, weak, strong, finisher)

	result, err := f.assignments.AutoAssignBatch(context.Background(), AutoAssignCommand{BatchID: f.batchID, Actor: supervisor})

	require.NoError(t, err)
	assert.Equal(t, f.batchID, result.BatchID)
	require.Len(t, result.Assignments, len(domain.Catalog))
	require.NotNil(t, result.Assignments["sanding"])
	assert.Equal(t, "W-STRONG", *result.Assignments["sanding"])
	require.NotNil(t, result.Assignments["finishing"])
	assert.Equal(t, "W-FIN", *result.Assignments["finishing"])
	assert.Nil(t, result.Assignments["intake"])
	assert.Nil(t, result.Assignments["shipping"])
	assert.ElementsMatch(t, []string{"intake", "sub_assembly", "final_assembly", "acoustic_qc", "shipping"}, result.Unassigned)
	assert.Len(t, f.notifier.sent, 2)
}

func TestAutoAssignBatch_CountsWorkHandedOutEarlierInTheCall(t *testing.T) {
	// W-A 230 vs W-B 225 when idle; W-A drops to 210 once it holds sanding
	f := newAssignmentFixture(t,
		worker("W-A", 0.9, domain.StageSanding, domain.StageFinishing),
		worker("W-B", 0.8, domain.StageSanding, domain.StageFinishing),
	)

	result, err := f.assignments.AutoAssignBatch(context.Background(), AutoAssignCommand{BatchID: f.batchID, Actor: supervisor})

	require.NoError(t, err)
	require.NotNil(t, result.Assignments["sanding"])
	assert.Equal(t, "W-A", *result.Assignments["sanding"])
	require.NotNil(t, result.Assignments["finishing"])
	assert.Equal(t, "W-B", *result.Assignments["finishing"])
	assert.Equal(t, 1, f.mem.load("W-A"))
	assert.Equal(t, 1, f.mem.load("W-B"))
}

func TestAutoAssignBatch_KeepsStaffedAndSkipsPassedStages(t *testing.T) {
	f := newAssignmentFixture(t,
		worker("W-SAND", 0.6, domain.StageSanding),
		worker("W-STAR", 0.99, domain.StageSanding),
		worker("W-IN", 0.9, domain.StageIntake),
	)
	f.moveTo(t, f.batchID, domain.StageSanding)
	f.assign(t, domain.StageSanding, "W-SAND")

	result, err := f.assignments.AutoAssignBatch(context.Background(), AutoAssignCommand{BatchID: f.batchID, Actor: supervisor})

	require.NoError(t, err)
	assert.Nil(t, result.Assignments["intake"], "passed stages are never staffed")
	require.NotNil(t, result.Assignments["sanding"])
	assert.Equal(t, "W-SAND", *result.Assignments["sanding"], "an existing assignment is kept")
	assert.NotContains(t, result.Unassigned, "intake")
	assert.Equal(t, 0, f.mem.load("W-IN"))
}

// racingLoads reports every worker idle but refuses reservations for the
// listed workers, as when another process fills them between read and write
type racingLoads struct {
	memLoads
	full map[string]bool
}

func (r racingLoads) Reserve(ctx context.Context, workerID string, limit int) error {
	if r.full[workerID] {
		return domain.ErrCapacityExceeded
	}
	return r.memLoads.Reserve(ctx, workerID, limit)
}

func TestAutoAssignBatch_FallsThroughOnCapacity(t *testing.T) {
	f := newAssignmentFixture(t,
		worker("W-BEST", 0.99, domain.StageSanding),
		worker("W-NEXT", 0.7, domain.StageSanding),
	)
	store := f.mem.store()
	store.WorkerLoads = racingLoads{memLoads: memLoads{f.mem}, full: map[string]bool{"W-BEST": true}}
	svc := NewAssignmentService(store, f.directory, f.notifier, testLogger())

	result, err := svc.AutoAssignBatch(context.Background(), AutoAssignCommand{BatchID: f.batchID, Actor: supervisor})

	require.NoError(t, err)
	require.NotNil(t, result.Assignments["sanding"])
	assert.Equal(t, "W-NEXT", *result.Assignments["sanding"])
	assert.Equal(t, 0, f.mem.load("W-BEST"))
	assert.Equal(t, 1, f.mem.load("W-NEXT"))
}

func TestAutoAssignBatch_ExhaustedPoolIsAMiss(t *testing.T) {
	busy := worker("W-BUSY", 0.9, domain.StageSanding)
	busy.OpenAssignments = domain.MaxOpenAssignments
	f := newAssignmentFixture(t, busy)

	result, err := f.assignments.AutoAssignBatch(context.Background(), AutoAssignCommand{BatchID: f.batchID, Actor: supervisor})

	require.NoError(t, err)
	assert.Nil(t, result.Assignments["sanding"])
	assert.Contains(t, result.Unassigned, "sanding")
	assert.Empty(t, f.notifier.sent)
}

func TestAutoAssignBatch_Errors(t *testing.T) {
	f := newAssignmentFixture(t, worker("W-1", 0.9, domain.StageSanding))

	_, err := f.assignments.AutoAssignBatch(context.Background(), AutoAssignCommand{BatchID: f.batchID, Actor: floorHand})
	assertCode(t, err, apperrors.CodeForbidden)

	_, err = f.assignments.AutoAssignBatch(context.Background(), AutoAssignCommand{BatchID: f.batchID, ComplexityHint: "extreme", Actor: supervisor})
	assertCode(t, err, apperrors.CodeValidationError)

	_, err = f.assignments.AutoAssignBatch(context.Background(), AutoAssignCommand{BatchID: "missing", Actor: supervisor})
	assertCode(t, err, apperrors.CodeNotFound)

	f.directory.getActiveErr = errors.New("directory down")
	_, err = f.assignments.AutoAssignBatch(context.Background(), AutoAssignCommand{BatchID: f.batchID, Actor: supervisor})
	assertCode(t, err, apperrors.CodeServiceUnavailable)
	assert.Equal(t, 0, f.mem.load("W-1"), "a directory outage writes nothing")
}

func TestCompleteWork(t *testing.T) {
	f := newAssignmentFixture(t, worker("W-1", 0.9, domain.StageIntake))
	a := f.assign(t, domain.StageIntake, "W-1")
	self := domain.Actor{ID: "W-1", Role: domain.RoleWorker}

	dto, err := f.assignments.CompleteWork(context.Background(), CompleteWorkCommand{AssignmentID: a.ID, Outcome: "critical", Actor: self})

	require.NoError(t, err)
	assert.Equal(t, string(domain.AssignmentStatusCompleted), dto.Status)
	assert.Equal(t, "critical", dto.Outcome)
	assert.NotNil(t, dto.CompletedAt)
	assert.Equal(t, 0, f.mem.load("W-1"))

	batch, err := f.service.GetBatch(context.Background(), GetBatchQuery{BatchID: f.batchID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.QualityGood), batch.QualityStatus, "the outcome is not folded into the batch")

	_, err = f.assignments.CompleteWork(context.Background(), CompleteWorkCommand{AssignmentID: a.ID, Outcome: "good", Actor: self})
	assertCode(t, err, apperrors.CodeAlreadyCompleted)
	assert.Equal(t, 0, f.mem.load("W-1"), "capacity is released once")
}

func TestCompleteWork_Errors(t *testing.T) {
	f := newAssignmentFixture(t, worker("W-1", 0.9, domain.StageIntake))
	a := f.assign(t, domain.StageIntake, "W-1")

	_, err := f.assignments.CompleteWork(context.Background(), CompleteWorkCommand{AssignmentID: "missing", Outcome: "good", Actor: supervisor})
	assertCode(t, err, apperrors.CodeNotFound)

	_, err = f.assignments.CompleteWork(context.Background(), CompleteWorkCommand{AssignmentID: a.ID, Outcome: "good", Actor: floorHand})
	assertCode(t, err, apperrors.CodeForbidden)

	_, err = f.assignments.CompleteWork(context.Background(), CompleteWorkCommand{AssignmentID: a.ID, Outcome: "fine", Actor: supervisor})
	assertCode(t, err, apperrors.CodeValidationError)

	dto, err := f.assignments.CompleteWork(context.Background(), CompleteWorkCommand{AssignmentID: a.ID, Outcome: "good", Actor: supervisor})
	require.NoError(t, err, "supervisors may complete on a worker's behalf")
	assert.Equal(t, string(domain.AssignmentStatusCompleted), dto.Status)
}

func TestRankWorkers(t *testing.T) {
	off := worker("W-OFF", 1, domain.StageSanding)
	off.Available = false
	f := newAssignmentFixture(t,
		worker("W-A", 0.6, domain.StageSanding),
		worker("W-B", 0.9, domain.StageSanding),
		off,
		worker("W-FIN", 1, domain.StageFinishing),
	)
	f.mem.loads["W-B"] = 2

	ranked, err := f.assignments.RankWorkers(context.Background(), RankWorkersQuery{Stage: "Sanding"})

	require.NoError(t, err)
	assert.Equal(t, "sanding", ranked.Stage)
	require.Len(t, ranked.Rankings, 2)
	assert.Equal(t, "W-A", ranked.Rankings[0].WorkerID, "store load counts against the score")
	assert.Equal(t, "W-B", ranked.Rankings[1].WorkerID)
	assert.InDelta(t, -40.0, ranked.Rankings[1].Factors.Workload, 1e-9)

	_, err = f.assignments.RankWorkers(context.Background(), RankWorkersQuery{Stage: "Sanding", ComplexityHint: "huge"})
	assertCode(t, err, apperrors.CodeValidationError)
}

// TestEndToEnd_B1 walks one batch through assignment, transition, quality
// failure and the resulting block
func TestEndToEnd_B1(t *testing.T) {
	top := domain.Worker{
		WorkerID:        "W-A",
		Name:            "Ana",
		Role:            domain.RoleWorker,
		Specializations: []domain.Stage{domain.StageSanding},
		Active:          true,
		Available:       true,
		Performance:     domain.PerformanceMetrics{QualityPassRate: 0, AvgMinutesPerUnit: 100, SampleSize: 12},
	}
	second := domain.Worker{
		WorkerID:        "W-B",
		Name:            "Ben",
		Role:            domain.RoleWorker,
		Specializations: []domain.Stage{domain.StageSanding},
		Active:          true,
		Available:       true,
		Performance:     domain.PerformanceMetrics{QualityPassRate: 0.1, AvgMinutesPerUnit: 120, SampleSize: 12},
		OpenAssignments: 2,
	}
	f := newAssignmentFixture(t, top, second)
	ctx := context.Background()

	b, err := f.service.GetBatch(ctx, GetBatchQuery{BatchID: f.batchID})
	require.NoError(t, err)
	require.Equal(t, "B-1", b.BatchNumber)
	require.Equal(t, "intake", b.CurrentStage)
	require.Equal(t, "good", b.QualityStatus)

	ranked, err := f.assignments.RankWorkers(ctx, RankWorkersQuery{Stage: "sanding"})
	require.NoError(t, err)
	require.Len(t, ranked.Rankings, 2)
	assert.InDelta(t, 130.0, ranked.Rankings[0].Score, 1e-9)
	assert.InDelta(t, 95.0, ranked.Rankings[1].Score, 1e-9)

	result, err := f.assignments.AutoAssignBatch(ctx, AutoAssignCommand{BatchID: f.batchID, Actor: supervisor})
	require.NoError(t, err)
	require.NotNil(t, result.Assignments["sanding"])
	assert.Equal(t, "W-A", *result.Assignments["sanding"])

	moved, err := f.service.Transition(ctx, TransitionCommand{BatchID: f.batchID, ToStage: "Sanding", Actor: supervisor})
	require.NoError(t, err)
	assert.Equal(t, "sanding", moved.CurrentStage)

	view, err := f.service.PipelineView(ctx)
	require.NoError(t, err)
	require.Len(t, view.Stages[1].Batches, 1)
	assert.Equal(t, "B-1", view.Stages[1].Batches[0].BatchNumber)
	assert.Empty(t, view.Stages[0].Batches)

	_, err = f.service.RecordQualityCheck(ctx, RecordQualityCheckCommand{BatchID: f.batchID, Stage: "sanding", Status: "critical", Actor: supervisor})
	require.NoError(t, err)

	_, err = f.service.Transition(ctx, TransitionCommand{BatchID: f.batchID, ToStage: "Finishing", Actor: supervisor})
	assertCode(t, err, apperrors.CodeQualityBlocked)
}
