package mockapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"greenlabel.or.id/admin/internal/audit"
	"greenlabel.or.id/admin/internal/ids"
	"greenlabel.or.id/admin/internal/obs"
)

type principalKey struct{}

type principal struct {
	user        user
	permissions []string
}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

// authenticate resolves the bearer token to a live, active user.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}
		xid, err := s.tokens.verify(header[len("Bearer "):])
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
			return
		}
		u, ok := s.state.userByXID(xid)
		if !ok || !u.Active {
			writeError(w, r, http.StatusUnauthorized, "invalid_token", "account is no longer available")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal{user: u, permissions: s.state.permissionsOf(u)})
		ctx = audit.WithActor(ctx, u.XID)
		ctx = audit.WithRequestID(ctx, r.Header.Get(headerRequestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// require wraps h with a permission check. Must run behind authenticate.
func (s *Server) require(perm string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFrom(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		for _, granted := range p.permissions {
			if granted == perm {
				h(w, r)
				return
			}
		}
		writeError(w, r, http.StatusForbidden, "forbidden", "missing permission "+perm)
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		requestID := r.Header.Get(headerRequestID)
		fields := map[string]any{
			"ts":          start.UTC().Format(time.RFC3339Nano),
			"level":       "info",
			"msg":         "request",
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.code,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  requestID,
		}
		// Console request ids carry the client's send time.
		if sent, ok := ids.RequestTime(requestID); ok {
			fields["client_lag_ms"] = start.Sub(sent).Milliseconds()
		}
		obs.LogRequest(fields)
	})
}

// rateLimit applies a token bucket per client IP. Idle buckets are dropped on
// access after bucketTTL.
func rateLimit(next http.Handler, perSecond float64, burst int) http.Handler {
	const bucketTTL = 5 * time.Minute
	type bucket struct {
		lim  *rate.Limiter
		seen time.Time
	}
	if burst <= 0 {
		burst = 1
	}
	var (
		mu        sync.Mutex
		buckets   = make(map[string]*bucket)
		lastSweep = time.Now()
	)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > time.Minute {
			for k, b := range buckets {
				if now.Sub(b.seen) > bucketTTL {
					delete(buckets, k)
				}
			}
			lastSweep = now
		}
		b, ok := buckets[ip]
		if !ok {
			b = &bucket{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
			buckets[ip] = b
		}
		b.seen = now
		allowed := b.lim.Allow()
		mu.Unlock()

		if !allowed {
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
