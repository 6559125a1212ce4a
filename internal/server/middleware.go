package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// UserIdHeader carries the caller identity resolved by the upstream auth proxy
const UserIdHeader = "X-User-Id"

type contextKey string

var userIdContextKey = contextKey("user_id")

var errNoUser = errors.New("no authenticated user in context")

func UserIdFromContext(ctx context.Context) (string, error) {
	userId, ok := ctx.Value(userIdContextKey).(string)
	if !ok || userId == "" {
		return "", errNoUser
	}
	return userId, nil
}

// requireUser rejects requests that arrive without a resolved user id
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := r.Header.Get(UserIdHeader)
		if userId == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthorized", Message: "missing " + UserIdHeader})
			return
		}
		ctx := context.WithValue(r.Context(), userIdContextKey, userId)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// logRequests writes one zap line per request, at a level chosen by status
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.statusCode),
			zap.Duration("duration", time.Since(start)),
		}
		if userId := r.Header.Get(UserIdHeader); userId != "" {
			fields = append(fields, zap.String("user_id", userId))
		}

		switch {
		case rec.statusCode >= 500:
			zap.L().Error("http_request", fields...)
		case rec.statusCode >= 400:
			zap.L().Warn("http_request", fields...)
		default:
			zap.L().Debug("http_request", fields...)
		}
	})
}
