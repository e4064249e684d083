package http

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/nft-ticket-protocol/internal/idempotency"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/rateLimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const (
	SignerHeader      = "X-Signer-Address"
	IdempotencyHeader = "Idempotency-Key"
	minIdempotencyKey = 16
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := logger.WithFields(map[string]interface{}{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			ctx := observability.ContextWithLogger(r.Context(), entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type signerKey struct{}

// SignerMiddleware takes the caller's wallet address from X-Signer-Address. Signature
// verification happens upstream; an absent header leaves the signer empty.
func SignerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), signerKey{}, r.Header.Get(SignerHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func SignerFrom(ctx context.Context) string {
	s, _ := ctx.Value(signerKey{}).(string)
	return s
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func RateLimitMiddleware(rl *rateLimit.RateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed := rl.Allow(r.Context(), "ip:"+clientIP(r), rateLimit.PerIP)
			if signer := SignerFrom(r.Context()); allowed && signer != "" && r.Method == http.MethodPost {
				allowed = rl.Allow(r.Context(), "signer:"+signer, rateLimit.PerSigner)
			}
			if !allowed {
				observability.RateLimitExceeded.Inc()
				writeProblem(w, http.StatusTooManyRequests, "RateLimited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdempotencyMiddleware replays the stored response for a repeated POST carrying the same
// Idempotency-Key. Keys are scoped to signer and path. Only non-5xx responses are stored.
func IdempotencyMiddleware(idemp *idempotency.Idempotency, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(IdempotencyHeader)
			if r.Method != http.MethodPost || header == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(header) < minIdempotencyKey {
				writeProblem(w, http.StatusBadRequest, "InvalidInput", "invalid Idempotency-Key")
				return
			}
			log := observability.FromContext(r.Context(), logger)
			key := SignerFrom(r.Context()) + ":" + r.URL.Path + ":" + header

			replay, claimed, err := idemp.Begin(r.Context(), key)
			if err != nil {
				log.WithError(err).Error("idempotency lookup failed")
				writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "idempotency store unavailable")
				return
			}
			if replay != nil {
				w.Header().Set("Content-Type", replay.ContentType)
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(replay.Status)
				w.Write(replay.Body)
				return
			}
			if !claimed {
				writeProblem(w, http.StatusConflict, "Conflict", "request with this Idempotency-Key is in progress")
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			ctx := context.WithoutCancel(r.Context())
			if ww.Status() >= http.StatusInternalServerError {
				if err := idemp.Abort(ctx, key); err != nil {
					log.WithError(err).Warn("idempotency release failed")
				}
				return
			}
			resp := idempotency.Response{Status: ww.Status(), ContentType: ww.Header().Get("Content-Type"), Body: body.Bytes()}
			if err := idemp.Commit(ctx, key, resp); err != nil {
				log.WithError(err).Warn("idempotency save failed")
			}
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := observability.Tracer().Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}
