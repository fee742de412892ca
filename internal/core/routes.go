package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"cinemagic/internal/types"
)

// defaultRedactedHeaders lists header names whose values are masked in request
// logs to prevent accidental leakage of credentials or webhook signatures.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
}

// MountRoutes defines the top-level routing hierarchy.
// It registers the global middleware chain, domain handler routes, and the
// health check.
func (s *Server) MountRoutes() {
	// Global Middleware Registration (strict order matters).
	s.registerGlobalMiddleware()

	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering Rationale:
//  1. Recoverer       - Catches panics; outermost to catch all failures.
//  2. RequestID       - Generates/propagates correlation ID for tracing.
//  3. SecurityHeaders - Ensures all responses include security headers.
//  4. RequestLogger   - Structured logging (redacted headers).
//  5. CORS            - Browser security headers.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
}

// corsAllowedOrigins returns the CORS allowed origins from configuration.
func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// HandleHealth is a liveness probe: it reports that the process is up and
// able to serve requests. It performs no dependency checks.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// ContextTimeoutMiddleware sets a deadline on the request context.
// If the deadline is exceeded, downstream handlers receive a cancelled
// context; the response is controlled by the handler's behavior on
// context cancellation.
//
// Applied per-route rather than globally: a child context cannot extend
// its parent's deadline, so a chain-wide timeout would cap the montage
// route's long renders.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware generates or propagates a unique request ID for
// correlation across logs. If the incoming request contains an X-Request-Id
// header, that value is reused; otherwise, a new random ID is generated.
//
// The request ID is stored in the context via types.WithRequestID and set as
// the X-Request-Id response header for client correlation.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateRequestID produces a cryptographically random hex string suitable
// for use as a request correlation ID. It generates 16 random bytes encoded
// as 32 hex characters.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback: this should never happen in practice. If crypto/rand
		// fails, we still need a non-empty ID for correlation.
		return "fallback-" + hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}
