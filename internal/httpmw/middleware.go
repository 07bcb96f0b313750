package httpmw

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetplane/internal/models"
)

type contextKey string

const entityCodeContextKey contextKey = "entity_code"

// ExtractEntityCode reads the entity-scoping token from the request. The
// query parameter wins over the header. An empty result or the ALL sentinel
// routes the request to the aggregation path.
func ExtractEntityCode(r *http.Request) string {
	if code := r.URL.Query().Get("entity"); code != "" {
		return models.NormalizeCode(code)
	}
	return models.NormalizeCode(r.Header.Get("X-Entity-Code"))
}

// EntityCodeFromContext extracts the entity code from the request context.
// This should be called from handlers wrapped by EntityScopeMiddleware.
func EntityCodeFromContext(ctx context.Context) string {
	code, _ := ctx.Value(entityCodeContextKey).(string)
	return code
}

// EntityScopeMiddleware extracts the entity-scoping token and stores it in
// the request context for handlers and audit logging.
func EntityScopeMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := ExtractEntityCode(r)
			ctx := context.WithValue(r.Context(), entityCodeContextKey, code)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger logs one line per request with method, path, entity scope,
// status and duration.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("entity", EntityCodeFromContext(r.Context())).
				Int("status", rec.status).
				Dur("duration", time.Since(started)).
				Msg("http request")
		})
	}
}
