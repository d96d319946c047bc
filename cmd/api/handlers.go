package main

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/application"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/changefeed"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/errors"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/idempotency"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/middleware"
)

const (
	serviceName = "production-service"

	// keeps idle change streams open through proxies
	streamKeepAlive = 15 * time.Second

	readyTimeout = 2 * time.Second
)

// routerDeps are the collaborators of the HTTP layer
type routerDeps struct {
	Pipeline    *application.PipelineService
	Assignments *application.AssignmentService
	Bus         *changefeed.Bus
	Projection  *changefeed.PipelineProjection
	Idempotency idempotency.KeyRepository
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
	Ready       func(ctx context.Context) error
}

func init() {
	// stage ids or display names, as domain.ParseStage accepts
	middleware.RegisterEnumFunc("stage",
		strings.Join(append(domain.StageValues(), domain.StageNames()...), ", "),
		func(s string) bool {
			_, err := domain.ParseStage(s)
			return err == nil
		})
	middleware.RegisterEnum("quality_status", domain.QualityValues()...)
	middleware.RegisterEnum("complexity", domain.ComplexityValues()...)
}

func newRouter(deps *routerDeps) *gin.Engine {
	logger := deps.Logger
	router := gin.New()

	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(deps.Metrics))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(serviceName)))

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, readyTimeout, deps.Ready))
	router.GET("/metrics", middleware.MetricsEndpoint(deps.Metrics))

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.ActorAuth(&middleware.ActorAuthConfig{Roles: domain.RoleValues()}))

	if deps.Idempotency != nil {
		idempotencyConfig := idempotency.DefaultConfig(serviceName, deps.Idempotency)
		idempotencyConfig.ActorIDExtractor = func(c *gin.Context) string {
			return c.GetString(middleware.ContextKeyActorID)
		}
		idempotencyConfig.Metrics = idempotency.NewMetrics(deps.Metrics.Registry())
		apiV1.Use(idempotency.Middleware(idempotencyConfig))
	}

	batches := apiV1.Group("/batches")
	{
		batches.POST("", createBatchHandler(deps.Pipeline, logger))
		batches.GET("/:batchId", getBatchHandler(deps.Pipeline, logger))
		batches.POST("/:batchId/transition", transitionHandler(deps.Pipeline, logger))
		batches.POST("/:batchId/rework", reworkHandler(deps.Pipeline, logger))
		batches.POST("/:batchId/quality-checks", qualityCheckHandler(deps.Pipeline, logger))
		batches.POST("/:batchId/archive", archiveHandler(deps.Pipeline, logger))
		batches.POST("/:batchId/auto-assign", autoAssignHandler(deps.Assignments, logger))
		batches.POST("/:batchId/assignments", assignHandler(deps.Assignments, logger))
		batches.GET("/:batchId/assignments", listAssignmentsHandler(deps.Assignments, logger))
	}

	apiV1.POST("/assignments/:assignmentId/complete", completeWorkHandler(deps.Assignments, logger))

	apiV1.GET("/pipeline", pipelineHandler(deps.Pipeline, logger))
	apiV1.GET("/pipeline/live", livePipelineHandler(deps.Projection))
	apiV1.GET("/stages", stagesHandler())
	apiV1.GET("/stages/:stage/rankings", rankingsHandler(deps.Assignments, logger))
	apiV1.GET("/changes/:entity", changesHandler(deps.Bus, logger))

	return router
}

// currentActor reads the identity set by middleware.ActorAuth
func currentActor(c *gin.Context) domain.Actor {
	return domain.Actor{
		ID:   c.GetString(middleware.ContextKeyActorID),
		Role: domain.Role(c.GetString(middleware.ContextKeyActorRole)),
	}
}

func createBatchHandler(service *application.PipelineService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			OrderIDs []string `json:"orderIds" binding:"required,min=1,dive,required,safe_string"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		batch, err := service.CreateBatch(c.Request.Context(), application.CreateBatchCommand{
			OrderIDs: req.OrderIDs,
			Actor:    currentActor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		middleware.AddSpanAttributes(c, map[string]string{
			"batch.id":     batch.ID,
			"batch.number": batch.BatchNumber,
		})
		c.JSON(http.StatusCreated, batch)
	}
}

func getBatchHandler(service *application.PipelineService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		batchID := c.Param("batchId")
		middleware.AddSpanAttributes(c, map[string]string{"batch.id": batchID})

		batch, err := service.GetBatch(c.Request.Context(), application.GetBatchQuery{BatchID: batchID})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

func transitionHandler(service *application.PipelineService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		batchID := c.Param("batchId")
		var req struct {
			ToStage string `json:"toStage" binding:"required,stage"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]string{
			"batch.id":      batchID,
			"batch.toStage": req.ToStage,
		})

		batch, err := service.Transition(c.Request.Context(), application.TransitionCommand{
			BatchID: batchID,
			ToStage: req.ToStage,
			Actor:   currentActor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

func reworkHandler(service *application.PipelineService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		batchID := c.Param("batchId")
		var req struct {
			ToStage string `json:"toStage" binding:"required,stage"`
			Reason  string `json:"reason" binding:"required,max=500,safe_string"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]string{
			"batch.id":      batchID,
			"batch.toStage": req.ToStage,
		})

		batch, err := service.Rework(c.Request.Context(), application.ReworkCommand{
			BatchID: batchID,
			ToStage: req.ToStage,
			Reason:  req.Reason,
			Actor:   currentActor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

func qualityCheckHandler(service *application.PipelineService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		batchID := c.Param("batchId")
		var req struct {
			Stage  string `json:"stage" binding:"required,stage"`
			Status string `json:"status" binding:"required,quality_status"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]string{
			"batch.id":       batchID,
			"quality.stage":  req.Stage,
			"quality.status": req.Status,
		})

		batch, err := service.RecordQualityCheck(c.Request.Context(), application.RecordQualityCheckCommand{
			BatchID: batchID,
			Stage:   req.Stage,
			Status:  req.Status,
			Actor:   currentActor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

func archiveHandler(service *application.PipelineService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		batchID := c.Param("batchId")
		middleware.AddSpanAttributes(c, map[string]string{"batch.id": batchID})

		batch, err := service.ArchiveBatch(c.Request.Context(), application.ArchiveBatchCommand{
			BatchID: batchID,
			Actor:   currentActor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

func autoAssignHandler(service *application.AssignmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		batchID := c.Param("batchId")

		// the body is optional
		var req struct {
			ComplexityHint string `json:"complexityHint" binding:"omitempty,complexity"`
		}
		if c.Request.ContentLength != 0 {
			if appErr := middleware.BindAndValidate(c, &req); appErr != nil && !isEmptyBody(appErr) {
				responder.RespondWithAppError(appErr)
				return
			}
		}

		middleware.AddSpanAttributes(c, map[string]string{
			"batch.id":   batchID,
			"complexity": req.ComplexityHint,
		})

		result, err := service.AutoAssignBatch(c.Request.Context(), application.AutoAssignCommand{
			BatchID:        batchID,
			ComplexityHint: req.ComplexityHint,
			Actor:          currentActor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// isEmptyBody reports a bind failure caused by a chunked request without a body
func isEmptyBody(appErr *errors.AppError) bool {
	return appErr.Err == io.EOF || appErr.Message == "invalid request body: "+io.EOF.Error()
}

func assignHandler(service *application.AssignmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		batchID := c.Param("batchId")
		var req struct {
			Stage    string `json:"stage" binding:"required,stage"`
			WorkerID string `json:"workerId" binding:"required,safe_string"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]string{
			"batch.id":  batchID,
			"stage":     req.Stage,
			"worker.id": req.WorkerID,
		})

		assignment, err := service.Assign(c.Request.Context(), application.AssignCommand{
			BatchID:  batchID,
			Stage:    req.Stage,
			WorkerID: req.WorkerID,
			Actor:    currentActor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, assignment)
	}
}

func listAssignmentsHandler(service *application.AssignmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		batchID := c.Param("batchId")
		list, err := service.ListAssignments(c.Request.Context(), application.ListAssignmentsQuery{BatchID: batchID})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, list)
	}
}

func completeWorkHandler(service *application.AssignmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		assignmentID := c.Param("assignmentId")
		var req struct {
			Outcome string `json:"outcome" binding:"required,quality_status"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]string{
			"assignment.id":      assignmentID,
			"assignment.outcome": req.Outcome,
		})

		assignment, err := service.CompleteWork(c.Request.Context(), application.CompleteWorkCommand{
			AssignmentID: assignmentID,
			Outcome:      req.Outcome,
			Actor:        currentActor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, assignment)
	}
}

func pipelineHandler(service *application.PipelineService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		view, err := service.PipelineView(c.Request.Context())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, view)
	}
}

func livePipelineHandler(projection *changefeed.PipelineProjection) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, application.ToPipelineDTO(projection.Snapshot(), time.Now().UTC()))
	}
}

func stagesHandler() gin.HandlerFunc {
	catalog := application.StageCatalog()
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, catalog)
	}
}

func rankingsHandler(service *application.AssignmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		stage := c.Param("stage")
		complexity := c.Query("complexity")
		middleware.AddSpanAttributes(c, map[string]string{
			"stage":      stage,
			"complexity": complexity,
		})

		rankings, err := service.RankWorkers(c.Request.Context(), application.RankWorkersQuery{
			Stage:          stage,
			ComplexityHint: complexity,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, rankings)
	}
}

// changesHandler streams one entity channel as server-sent events until the
// client goes away or the subscriber is dropped for falling behind
func changesHandler(bus *changefeed.Bus, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		entity, err := changefeed.ParseEntity(c.Param("entity"))
		if err != nil {
			responder.RespondWithAppError(errors.ErrValidation(err.Error()).WithDetail("entity", c.Param("entity")))
			return
		}

		sub := bus.Subscribe(entity)
		defer sub.Close()

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Header("Content-Type", "text/event-stream")

		// commit headers so clients see the stream before the first change
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
		c.Writer.Flush()

		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()

		ctx := c.Request.Context()
		logger.WithContext(ctx).Debug("Change stream opened", "entity", entity)

		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case event, ok := <-sub.Events():
				if !ok {
					return false
				}
				c.SSEvent(string(event.EventType), event)
				return true
			case <-keepAlive.C:
				c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
				return true
			}
		})
	}
}
