package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/devwarm/internal/security"
)

// authMiddleware returns a chi-compatible middleware that validates Bearer token
// or Basic auth credentials using constant-time comparison.
// Failed attempts are counted in the limiter's auth bucket per client
// address; once a client's bucket is full its requests are refused with 429
// until the window drains. Other clients are unaffected.
func authMiddleware(cfg AuthConfig, auditLogger *security.AuditLogger, rateLimiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rateLimiter.ExhaustedFor(security.BucketAuth, clientKey(r)) {
				emitAuthEvent(auditLogger, security.EventRateLimit, r, "", "too many failed attempts")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				reject(w, r, auditLogger, rateLimiter, "missing authorization header")
				return
			}

			if cfg.BearerToken != "" {
				if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
					if constantTimeEqual(after, cfg.BearerToken) {
						emitAuthEvent(auditLogger, security.EventAuthSuccess, r, "bearer", "bearer")
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			if cfg.BasicUser != "" && cfg.BasicPass != "" {
				user, pass, ok := r.BasicAuth()
				if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
					emitAuthEvent(auditLogger, security.EventAuthSuccess, r, user, "basic")
					next.ServeHTTP(w, r)
					return
				}
			}

			reject(w, r, auditLogger, rateLimiter, "invalid credentials")
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, auditLogger *security.AuditLogger, rateLimiter *security.RateLimiter, detail string) {
	_ = rateLimiter.AllowFor(security.BucketAuth, clientKey(r))
	emitAuthEvent(auditLogger, security.EventAuthFailure, r, "", detail)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// clientKey is the host part of the peer address. Forwarding headers are
// ignored since they are set by the client.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// emitAuthEvent logs an auth event to the audit logger if available.
func emitAuthEvent(logger *security.AuditLogger, eventType security.EventType, r *http.Request, principal, detail string) {
	logger.Log(security.AuditEvent{
		Type:      eventType,
		Remote:    r.RemoteAddr,
		Principal: principal,
		Detail:    detail,
		Metadata: map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
