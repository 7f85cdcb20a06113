package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type actorContextKey struct{}

type requestIDContextKey struct{}

// ActorMiddleware requires an X-Actor-ID on every mutating request. The
// identity is set by the gateway in front of this service and recorded as
// the author of each change.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
		if actor == "" {
			if isReadOnly(r) {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing X-Actor-ID")
			return
		}
		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromRequest(r *http.Request) string {
	actor, _ := r.Context().Value(actorContextKey{}).(string)
	return actor
}

// RequestIDMiddleware propagates X-Request-ID, minting one when absent.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromRequest(r *http.Request) string {
	if requestID, ok := r.Context().Value(requestIDContextKey{}).(string); ok {
		return requestID
	}
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func isReadOnly(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
