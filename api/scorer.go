package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/qacache/httpx"
	"github.com/adeilh/qacache/scoring"
)

type scorerHandlers struct {
	svc    *scoring.Service
	logger *zap.Logger
	now    func() time.Time
}

type evaluateRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type questionRequest struct {
	Question string `json:"question"`
}

// ScorerRoutes returns a registrar for the scoring service routes.
func ScorerRoutes(svc *scoring.Service, logger *zap.Logger) httpx.RouteRegistrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &scorerHandlers{svc: svc, logger: logger, now: time.Now}
	return func(a *httpx.App) {
		httpx.RegisterRoutes(a,
			httpx.Route{Method: http.MethodPost, Path: "/evaluate", Handler: h.evaluate},
			httpx.Route{Method: http.MethodPost, Path: "/llm", Handler: h.llm},
			httpx.Route{Method: http.MethodPost, Path: "/query", Handler: h.query},
			httpx.Route{Method: http.MethodGet, Path: "/health", Handler: h.health},
		)
	}
}

func (h *scorerHandlers) evaluate(c httpx.Context) error {
	var req evaluateRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid JSON body")
	}
	res, err := h.svc.Evaluate(c.Request().Context(), req.Question, req.Answer)
	if err != nil {
		if errors.Is(err, scoring.ErrMissingFields) {
			return httpx.HTTPError(httpx.StatusBadRequest, "missing fields: question and answer")
		}
		h.logger.Error("evaluate failed", zap.Error(err))
		return httpx.HTTPError(httpx.StatusInternalError, "score service error")
	}
	return c.JSON(httpx.StatusOK, res)
}

func (h *scorerHandlers) llm(c httpx.Context) error {
	var req questionRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid JSON body")
	}
	answer, err := h.svc.Answer(c.Request().Context(), req.Question)
	if err != nil {
		if errors.Is(err, scoring.ErrMissingFields) {
			return httpx.HTTPError(httpx.StatusBadRequest, "missing question in body")
		}
		h.logger.Error("llm call failed", zap.Error(err))
		return httpx.HTTPError(httpx.StatusInternalError, "llm call failed")
	}
	return c.JSON(httpx.StatusOK, map[string]string{"question": req.Question, "answer_llm": answer})
}

func (h *scorerHandlers) query(c httpx.Context) error {
	var req questionRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid JSON body")
	}
	res, err := h.svc.Query(c.Request().Context(), req.Question)
	if err != nil {
		if errors.Is(err, scoring.ErrMissingFields) {
			return httpx.HTTPError(httpx.StatusBadRequest, "missing question in body")
		}
		h.logger.Error("query failed", zap.Error(err))
		return httpx.HTTPError(httpx.StatusInternalError, "query failed")
	}
	return c.JSON(httpx.StatusOK, res)
}

func (h *scorerHandlers) health(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, map[string]any{"status": "ok", "ts": h.now().UnixMilli()})
}
