package httpx

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Route represents a single HTTP route definition.
type Route struct {
	Method     string
	Path       string
	Handler    HandlerFunc
	Middleware []MiddlewareFunc
}

// RegisterRoutes applies a list of Route definitions to the App instance.
func RegisterRoutes(a *App, routes ...Route) {
	if a == nil || a.e == nil {
		return
	}
	for _, r := range routes {
		if r.Handler == nil || r.Path == "" || r.Method == "" {
			continue
		}
		a.e.Add(strings.ToUpper(r.Method), r.Path, r.Handler, r.Middleware...)
	}
}

// Mount exposes a plain net/http handler (for example promhttp) under path.
func (a *App) Mount(method, path string, h http.Handler) {
	if a == nil || a.e == nil || h == nil {
		return
	}
	a.e.Add(strings.ToUpper(method), path, echo.WrapHandler(h))
}
