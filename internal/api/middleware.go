// Package api exposes spec section 6's command surface over HTTP:
// startSession, cancelSession, finishSession, discard, flush,
// pauseSession, resumeSession, setFlushInterval, each routed to either the caller's
// own attachment or, with sufficient privilege, a named remote one.
// Grounded on the teacher's internal/middleware/middleware.go
// (RequestID/Logger/Recovery/JWTAuth) and internal/api/helpers.go
// (sendJSON/sendError/decodeJSON), adapted to this package's own
// authn.Service and Claims instead of the teacher's auth.Service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nmslite/profilerd/internal/authn"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	claimsKey    contextKey = "claims"
)

// ErrorResponse is the standard error envelope every handler error
// goes through.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id"`
}

// RequestID stamps every request with a correlation id, mirroring the
// teacher's middleware.RequestID but using it purely for
// cross-request log correlation (no discovery-profile concept here).
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Logger logs one structured line per completed request.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			requestID, _ := r.Context().Value(requestIDKey).(string)
			logger.Info("request completed",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// Recovery turns a panicking handler into a 500 response instead of a
// crashed server.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID, _ := r.Context().Value(requestIDKey).(string)
					logger.Error("panic recovered", "request_id", requestID, "error", rec, "path", r.URL.Path)
					sendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// JWTAuth validates the bearer token and stashes its claims in the
// request context for handlers to read via claimsFromContext.
func JWTAuth(authSvc *authn.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				sendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header", nil)
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				sendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format", nil)
				return
			}

			claims, err := authSvc.ValidateToken(parts[1])
			if err != nil {
				sendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFromContext(r *http.Request) (*authn.Claims, bool) {
	claims, ok := r.Context().Value(claimsKey).(*authn.Claims)
	return claims, ok
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func sendError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	requestID, _ := r.Context().Value(requestIDKey).(string)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, Details: details, RequestID: requestID},
	})
}

func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var input T
	if r.Body == nil {
		return input, true
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		sendError(w, r, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", err.Error())
		return input, false
	}
	return input, true
}
