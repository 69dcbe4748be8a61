package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	HeaderXRequestID = "X-Request-Id"
	// HeaderXGroup selects the backend instance group; the gateway routes
	// product, recommendation and review calls by it.
	HeaderXGroup = "X-group"

	maxRequestIDLen = 128
)

type ctxKeyRequestID struct{}

type ctxKeyGroup struct{}

// RequestID establishes the request id and routing group in context and
// echoes the id back. A missing or unusable incoming id is replaced.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderXRequestID)
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderXRequestID, reqID)

		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, reqID)
		if group := r.Header.Get(HeaderXGroup); group != "" {
			ctx = context.WithValue(ctx, ctxKeyGroup{}, group)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validRequestID accepts short printable ASCII ids so they can be logged
// and forwarded as a header unchanged.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if reqID, ok := ctx.Value(ctxKeyRequestID{}).(string); ok {
		return reqID
	}
	return ""
}

// GetGroup returns the inbound X-group value, if any.
func GetGroup(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	group, _ := ctx.Value(ctxKeyGroup{}).(string)
	return group
}

// ForwardHeaders copies the request id and routing group from ctx onto an
// outbound request.
func ForwardHeaders(ctx context.Context, h http.Header) {
	if reqID := GetRequestID(ctx); reqID != "" {
		h.Set(HeaderXRequestID, reqID)
	}
	if group := GetGroup(ctx); group != "" {
		h.Set(HeaderXGroup, group)
	}
}
