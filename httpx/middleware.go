package httpx

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/qacache/auth"
)

// AuthMiddleware bridges a net/http auth.Middleware into the echo chain.
func AuthMiddleware(mw *auth.Middleware) MiddlewareFunc {
	if mw == nil {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				return HTTPError(StatusUnauthorized, "auth middleware missing")
			}
		}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			var nextErr error
			downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				nextErr = next(c)
			})
			mw.Handler(downstream).ServeHTTP(c.Response(), c.Request())
			return nextErr
		}
	}
}

// RequestLogger logs one zap entry per request and reports it to obs when
// set. Errors are committed through the echo error handler first so the
// logged status is the one the client saw.
func RequestLogger(logger *zap.Logger, obs RequestObserver) MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			req := c.Request()
			code := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			if obs != nil {
				obs.ObserveRequest(req.Method, route, code, elapsed)
			}

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("route", route),
				zap.String("uri", req.RequestURI),
				zap.Int("status", code),
				zap.Duration("duration", elapsed),
				zap.String("remote_ip", c.RealIP()),
			}
			switch {
			case code >= 500:
				logger.Error("http request failed", fields...)
			case code >= 400:
				logger.Warn("http request rejected", fields...)
			default:
				logger.Info("http request completed", fields...)
			}
			return nil
		}
	}
}
