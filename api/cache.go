// Package api registers the HTTP contracts of the cache service and the
// scoring service on an httpx.App.
package api

import (
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/adeilh/qacache/fallback"
	"github.com/adeilh/qacache/httpx"
	"github.com/adeilh/qacache/service"
)

type CacheOptions struct {
	// Admin guards the destructive routes when set.
	Admin   httpx.MiddlewareFunc
	Metrics http.Handler
	Logger  *zap.Logger
}

type CacheOption func(*CacheOptions)

func WithAdmin(mw httpx.MiddlewareFunc) CacheOption {
	return func(o *CacheOptions) { o.Admin = mw }
}

func WithMetrics(h http.Handler) CacheOption {
	return func(o *CacheOptions) { o.Metrics = h }
}

func WithLogger(l *zap.Logger) CacheOption {
	return func(o *CacheOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

type cacheHandlers struct {
	svc    *service.Service
	logger *zap.Logger
}

// CacheRoutes returns a registrar for the cache service routes.
func CacheRoutes(svc *service.Service, opts ...CacheOption) httpx.RouteRegistrar {
	cfg := CacheOptions{Logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	h := &cacheHandlers{svc: svc, logger: cfg.Logger}
	var admin []httpx.MiddlewareFunc
	if cfg.Admin != nil {
		admin = append(admin, cfg.Admin)
	}

	return func(a *httpx.App) {
		a.POST("/update", h.update)
		a.GET("/get/:question", h.get)
		a.DELETE("/delete/:question", h.delete, admin...)
		a.GET("/stats", h.stats)
		a.GET("/entries", h.entries)
		a.POST("/reset-stats", h.resetStats, admin...)
		a.POST("/clear", h.clear, admin...)
		a.GET("/health", h.health)
		if cfg.Metrics != nil {
			a.Mount(http.MethodGet, "/metrics", cfg.Metrics)
		}
	}
}

func (h *cacheHandlers) update(c httpx.Context) error {
	var req service.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid JSON body")
	}
	res, err := h.svc.Update(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(httpx.StatusCreated, res)
}

func (h *cacheHandlers) get(c httpx.Context) error {
	question := pathParam(c, "question")
	if question == "" {
		return httpx.HTTPError(httpx.StatusBadRequest, "missing question parameter")
	}
	res, err := h.svc.Get(c.Request().Context(), question)
	switch {
	case err == nil:
		return c.JSON(httpx.StatusOK, res)
	case errors.Is(err, service.ErrNotFound):
		return httpx.JSONError(httpx.StatusNotFound, map[string]any{
			"fromCache": false,
			"error":     "not found in cache and no score service configured",
		})
	case errors.Is(err, service.ErrUpstream):
		detail := err.Error()
		var upstream *fallback.UpstreamError
		if errors.As(err, &upstream) {
			detail = upstream.Err.Error()
		}
		return httpx.JSONError(httpx.StatusBadGateway, map[string]any{
			"error":  "score service query failed",
			"detail": detail,
		})
	default:
		return err
	}
}

func (h *cacheHandlers) delete(c httpx.Context) error {
	question := pathParam(c, "question")
	removed := h.svc.Delete(c.Request().Context(), question)
	return c.JSON(httpx.StatusOK, map[string]bool{"removed": removed})
}

func (h *cacheHandlers) stats(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, h.svc.Stats())
}

func (h *cacheHandlers) entries(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, h.svc.Entries())
}

func (h *cacheHandlers) resetStats(c httpx.Context) error {
	stats := h.svc.ResetStats(c.Request().Context())
	return c.JSON(httpx.StatusOK, map[string]any{"message": "stats reset", "stats": stats})
}

func (h *cacheHandlers) clear(c httpx.Context) error {
	n := h.svc.Clear(c.Request().Context())
	h.logger.Info("cache cleared", zap.Int("records", n))
	return c.JSON(httpx.StatusOK, map[string]int{"cleared": n})
}

func (h *cacheHandlers) health(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, h.svc.Health())
}

// pathParam decodes a route parameter exactly once. Echo routes on
// URL.RawPath when the request carried escapes such as %2F, and the
// parameter is still encoded then; otherwise it comes from the decoded
// URL.Path and is used as is.
func pathParam(c httpx.Context, name string) string {
	v := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return v
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}
