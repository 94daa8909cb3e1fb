package server

import (
	"context"
	"net/http"
	"time"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/auth"
	"github.com/FranLegon/drive-doc-relay/internal/crypto"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey struct{ name string }

var (
	serviceKey = &contextKey{"service"}
	callerKey  = &contextKey{"caller"}
)

// serviceFromContext returns the document service bound to the request's token
func serviceFromContext(ctx context.Context) api.DocumentService {
	svc, _ := ctx.Value(serviceKey).(api.DocumentService)
	return svc
}

// accessLog writes one line per request through the process logger
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		// the auth middleware fills the caller in place once the token is parsed
		caller := new(string)
		r = r.WithContext(context.WithValue(r.Context(), callerKey, caller))

		next.ServeHTTP(ww, r)

		fp := *caller
		if fp == "" {
			fp = "-"
		}
		tags := []string{"HTTP", middleware.GetReqID(r.Context())}
		logger.InfoTagged(tags, "%s %s -> %d (%d bytes) in %s caller=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start).Round(time.Millisecond), fp)
	})
}

// bearerAuth rejects requests without a usable bearer token and otherwise stores a
// document service built from the token in the request context.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ParseBearer(r.Header.Get("Authorization"))
		if err != nil {
			s.base.sendError(w, http.StatusUnauthorized, err.Error())
			return
		}

		if caller, ok := r.Context().Value(callerKey).(*string); ok {
			*caller = crypto.Fingerprint(token)
		}

		svc, err := s.factory(r.Context(), token)
		if err != nil {
			s.base.sendError(w, http.StatusUnauthorized, "Authentication failed: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), serviceKey, svc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// limitBody bounds the request body size
func limitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
