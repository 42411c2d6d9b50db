package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type TokenExtractor func(*http.Request) (string, error)

type MiddlewareSkipper func(*http.Request) bool

type MiddlewareErrorHandler func(http.ResponseWriter, *http.Request, error)

type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	verifier     Verifier
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

func newMiddlewareConfig(verifier Verifier, opts ...MiddlewareOption) (middlewareConfig, error) {
	if verifier == nil {
		return middlewareConfig{}, errors.New("auth: middleware requires a verifier")
	}
	cfg := middlewareConfig{
		verifier:     verifier,
		extractor:    ChainExtractors(BearerTokenExtractor(), HeaderTokenExtractor(AdminTokenHeader)),
		skipper:      defaultSkipper,
		errorHandler: defaultErrorHandler,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg, nil
}

// AdminTokenHeader is accepted alongside Authorization: Bearer.
const AdminTokenHeader = "X-Admin-Token"

func WithTokenExtractor(extractor TokenExtractor) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if extractor != nil {
			cfg.extractor = extractor
		}
	}
}

func WithSkipper(skipper MiddlewareSkipper) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if skipper != nil {
			cfg.skipper = skipper
		}
	}
}

func WithErrorHandler(handler MiddlewareErrorHandler) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if handler != nil {
			cfg.errorHandler = handler
		}
	}
}

func BearerTokenExtractor() TokenExtractor {
	return func(r *http.Request) (string, error) {
		header := r.Header.Get("Authorization")
		if header == "" {
			return "", ErrTokenNotFound
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", ErrTokenInvalidInput
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			return "", ErrTokenInvalidInput
		}
		return token, nil
	}
}

// HeaderTokenExtractor reads the raw token from a custom header.
func HeaderTokenExtractor(name string) TokenExtractor {
	name = strings.TrimSpace(name)
	return func(r *http.Request) (string, error) {
		if name == "" {
			return "", ErrTokenInvalidInput
		}
		value := strings.TrimSpace(r.Header.Get(name))
		if value == "" {
			return "", ErrTokenNotFound
		}
		return value, nil
	}
}

func ChainExtractors(extractors ...TokenExtractor) TokenExtractor {
	copied := append([]TokenExtractor(nil), extractors...)
	return func(r *http.Request) (string, error) {
		var lastErr error = ErrTokenNotFound
		for _, extractor := range copied {
			if extractor == nil {
				continue
			}
			token, err := extractor(r)
			if err == nil {
				return token, nil
			}
			if !errors.Is(err, ErrTokenNotFound) {
				lastErr = err
			}
		}
		return "", lastErr
	}
}

func defaultSkipper(*http.Request) bool { return false }

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
