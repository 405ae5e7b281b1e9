package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/stashkv/stash/internal/auth"
	"github.com/stashkv/stash/internal/ratelimit"
)

// SecurityHeadersMiddleware adds security headers to all HTTP responses.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// MaxBodyMiddleware rejects request bodies larger than limit bytes. Requests
// that declare an oversized Content-Length are rejected up front; the body of
// everything else is capped with http.MaxBytesReader so chunked uploads
// cannot slip past the ceiling. This runs before authentication, so the
// ceiling is flat across tiers.
func MaxBodyMiddleware(next http.Handler, limit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > limit {
			respondError(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: "Request body too large",
				Code:  CodePayloadTooLarge,
				Limit: limit,
			})
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware resolves the X-API-Key header into a Principal and stores it
// in the request context. Requests without a valid key get 401.
func AuthMiddleware(next http.Handler, resolver auth.Resolver, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			respondError(w, http.StatusUnauthorized, ErrorResponse{
				Error: "Missing API key. Include 'X-API-Key' in request headers.",
				Code:  CodeUnauthenticated,
			})
			return
		}

		principal, err := resolver.Resolve(r.Context(), key)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				respondError(w, http.StatusUnauthorized, ErrorResponse{
					Error: "Invalid API key",
					Code:  CodeUnauthenticated,
				})
				return
			}
			logger.Error("api key resolution failed", "error", err)
			respondError(w, http.StatusServiceUnavailable, ErrorResponse{
				Error: "Authentication backend unavailable",
				Code:  CodeUnavailable,
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// RateLimitMiddleware enforces the per-user request budget. It must run
// after AuthMiddleware so the principal is available; unauthenticated
// requests pass through untouched.
func RateLimitMiddleware(next http.Handler, limiter *ratelimit.Limiter) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFrom(r.Context())
		if ok && !limiter.Allow(principal.UserID, principal.Tier) {
			respondError(w, http.StatusTooManyRequests, ErrorResponse{
				Error: "Rate limit exceeded. Slow down and retry.",
				Code:  CodeRateLimited,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
