package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobcost/internal/core/apperror"
	appctx "jobcost/internal/core/context"
	"jobcost/internal/infrastructure/storage/postgres"
	"jobcost/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

const keyIdempotency = "idempotency"

// IdempotencyStore records request keys and their responses.
// *postgres.IdempotencyStore implements it.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, actorID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
}

type pendingKey struct {
	key   string
	store IdempotencyStore
}

// Idempotency replays the stored response of a POST, PUT or PATCH that
// carries an already used X-Idempotency-Key. Requests without the header
// pass through.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)

		ctx := c.Request.Context()
		operation := c.Request.Method + " " + c.FullPath()
		replay, err := store.AcquireKey(ctx, key, appctx.GetActorID(ctx), operation, hex.EncodeToString(hash[:]))
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}
		if replay != nil {
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(keyIdempotency, &pendingKey{key: key, store: store})
		c.Next()
	}
}

// CompleteIdempotency stores the response about to be written for the
// request's idempotency key, if it has one. A nil body stores no content.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, body any) {
	v, ok := c.Get(keyIdempotency)
	if !ok {
		return
	}
	pending, _ := v.(*pendingKey)
	c.Set(keyIdempotency, nil)
	if pending == nil {
		return
	}

	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	default:
		var err error
		if raw, err = json.Marshal(b); err != nil {
			logger.Warn(c.Request.Context(), "encode idempotent response", "error", err)
			return
		}
	}
	if err := pending.store.CompleteKey(c.Request.Context(), pending.key, statusCode, contentType, raw); err != nil {
		logger.Warn(c.Request.Context(), "complete idempotency key", "key", pending.key, "error", err)
	}
}
