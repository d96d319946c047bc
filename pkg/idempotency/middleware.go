package idempotency

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey is the HTTP header name for the idempotency key
const HeaderIdempotencyKey = "Idempotency-Key"

// responseWriter wraps gin.ResponseWriter to capture response data
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

// Middleware returns a Gin middleware that replays the stored response for a
// repeated Idempotency-Key on POST requests
func Middleware(config *Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if config.RequireKey {
				abort(c, http.StatusBadRequest, "IDEMPOTENCY_KEY_REQUIRED", "Idempotency-Key header is required for this operation")
				return
			}
			c.Next()
			return
		}

		if err := ValidateKey(key, config.MaxKeyLength); err != nil {
			abort(c, http.StatusBadRequest, "IDEMPOTENCY_KEY_INVALID", fmt.Sprintf("Invalid idempotency key: %v", err))
			return
		}

		var actorID string
		if config.ActorIDExtractor != nil {
			actorID = config.ActorIDExtractor(c)
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		process(c, config, key, actorID, ComputeFingerprint(c.Request.Method, c.Request.URL.Path, requestBody))
	}
}

func process(c *gin.Context, config *Config, key, actorID, fingerprint string) {
	ctx := c.Request.Context()
	path := c.FullPath()
	method := c.Request.Method
	now := time.Now().UTC()

	candidate := &IdempotencyKey{
		ID:                 uuid.New().String(),
		Key:                key,
		ServiceID:          config.ServiceName,
		ActorID:            actorID,
		RequestPath:        c.Request.URL.Path,
		RequestMethod:      method,
		RequestFingerprint: fingerprint,
		LockedAt:           &now,
		CreatedAt:          now,
		ExpiresAt:          now.Add(config.RetentionPeriod),
	}

	stored, isNew, err := config.Repository.AcquireLock(ctx, candidate)
	if err != nil {
		slog.Error("Failed to acquire idempotency lock", "error", err, "key", key, "path", path)
		config.Metrics.RecordStorageError(config.ServiceName, "acquire_lock")
		abort(c, http.StatusServiceUnavailable, "IDEMPOTENCY_STORAGE_UNAVAILABLE", "Idempotency storage is temporarily unavailable")
		return
	}

	if !isNew {
		if stored.RequestFingerprint != fingerprint || stored.ActorID != actorID {
			config.Metrics.RecordParameterMismatch(config.ServiceName, path, method)
			abort(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_PARAMETER_MISMATCH", "Request differs from the original request with this idempotency key")
			return
		}

		if stored.IsCompleted() {
			config.Metrics.RecordHit(config.ServiceName, path, method)
			c.Header("Idempotent-Replayed", "true")
			c.Data(stored.ResponseCode, "application/json; charset=utf-8", stored.ResponseBody)
			c.Abort()
			return
		}

		if stored.IsLocked() && time.Since(*stored.LockedAt) < config.LockTimeout {
			config.Metrics.RecordConcurrentConflict(config.ServiceName, path, method)
			abort(c, http.StatusConflict, "IDEMPOTENCY_CONCURRENT_REQUEST", "A request with this idempotency key is currently being processed")
			return
		}

		slog.Info("Taking over stale idempotency key", "key", key, "path", path)
	}

	config.Metrics.RecordMiss(config.ServiceName, path, method)

	writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
	c.Writer = writer

	c.Next()

	status := writer.Status()
	if status >= http.StatusInternalServerError {
		// server failures are not replayed; the client may retry with the same key
		if err := config.Repository.ReleaseLock(ctx, stored.ID); err != nil {
			config.Metrics.RecordStorageError(config.ServiceName, "release_lock")
			slog.Error("Failed to release idempotency lock", "error", err, "key", key)
		}
		return
	}

	responseBody := writer.body.Bytes()
	if len(responseBody) > config.MaxResponseSize {
		responseBody = []byte(fmt.Sprintf(`{"code":"RESPONSE_NOT_CACHED","size":%d}`, len(responseBody)))
	}

	if err := config.Repository.StoreResponse(ctx, stored.ID, status, responseBody); err != nil {
		config.Metrics.RecordStorageError(config.ServiceName, "store_response")
		slog.Error("Failed to store idempotency response", "error", err, "key", key, "path", path)
	}
}
