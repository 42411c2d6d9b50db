package httpx

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/adeilh/qacache/auth"
)

func TestServerAndClientRoundTrip(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/ping", func(c Context) error {
			return c.JSON(StatusOK, map[string]string{"message": "pong"})
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	var body struct {
		Message string `json:"message"`
	}
	resp, err := client.Get(context.Background(), "/ping", &body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
	if body.Message != "pong" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestErrorHandlerWrapsEchoHTTPError(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/fail", func(c Context) error {
			return HTTPError(StatusBadRequest, "bad request")
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	resp, err := client.Get(context.Background(), "/fail", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if resp == nil {
		t.Fatalf("expected response for error path")
	}
	if resp.StatusCode() != StatusBadRequest {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
}

func TestCustomErrorHandler(t *testing.T) {
	var handler echo.HTTPErrorHandler = func(err error, c Context) {
		_ = c.JSON(StatusServiceUnavailable, map[string]string{"custom": err.Error()})
	}
	server := NewServer(WithErrorHandler(handler))
	server.RegisterRoutes(func(a *App) {
		a.GET("/boom", func(c Context) error { return HTTPError(StatusBadRequest, "bad") })
	})
	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))
	resp, _ := client.Get(context.Background(), "/boom", nil)
	if resp == nil || resp.StatusCode() != StatusServiceUnavailable {
		t.Fatalf("expected custom handler status %d, got %v", StatusServiceUnavailable, resp)
	}
	if !strings.Contains(resp.String(), "custom") {
		t.Fatalf("unexpected body: %s", resp.String())
	}
}

func TestAuthMiddlewareBridge(t *testing.T) {
	verifier := auth.VerifierFunc(func(_ context.Context, raw string) (auth.Principal, error) {
		if raw != "signed" {
			return auth.Principal{}, auth.ErrTokenRejected
		}
		return auth.Principal{Subject: "admin"}, nil
	})
	mw, err := auth.NewMiddleware(verifier)
	if err != nil {
		t.Fatalf("unexpected err creating middleware: %v", err)
	}

	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.POST("/clear", func(c Context) error {
			p, ok := auth.PrincipalFromContext(c.Request().Context())
			if !ok || p.Subject != "admin" {
				return HTTPError(StatusUnauthorized, "missing principal")
			}
			return c.JSON(StatusCreated, map[string]string{"ok": "yes"})
		}, AuthMiddleware(mw))
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))
	var out map[string]string
	resp, err := client.Post(context.Background(), "/clear", nil, &out, WithBearer("signed"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusCreated || out["ok"] != "yes" {
		t.Fatalf("unexpected response: status=%d body=%v", resp.StatusCode(), out)
	}

	_, err = client.Post(context.Background(), "/clear", nil, nil, WithBearer("forged"))
	if StatusCode(err) != StatusUnauthorized {
		t.Fatalf("StatusCode() = %d, want %d (err=%v)", StatusCode(err), StatusUnauthorized, err)
	}
}

func TestAuthMiddlewareNil(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/secure", func(c Context) error { return c.NoContent(StatusOK) }, AuthMiddleware(nil))
	})
	ts := NewTestServer(server.Handler())
	defer ts.Close()

	_, err := NewClient(WithBaseURL(ts.BaseURL())).Get(context.Background(), "/secure", nil)
	if StatusCode(err) != StatusUnauthorized {
		t.Fatalf("StatusCode() = %d, want %d", StatusCode(err), StatusUnauthorized)
	}
}

type observed struct {
	method, route string
	code          int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (r *recordingObserver) ObserveRequest(method, route string, code int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observed{method: method, route: route, code: code})
}

func TestRequestLoggerReportsRouteAndStatus(t *testing.T) {
	obs := &recordingObserver{}
	server := NewServer(WithObserver(obs), WithLogger(zap.NewNop()))
	server.RegisterRoutes(func(a *App) {
		a.GET("/get/:question", func(c Context) error {
			if c.Param("question") == "missing" {
				return JSONError(StatusNotFound, map[string]any{"fromCache": false, "error": "Not found"})
			}
			return c.NoContent(StatusOK)
		})
	})
	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))
	if _, err := client.Get(context.Background(), "/get/present", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := client.Get(context.Background(), "/get/missing", nil)
	if StatusCode(err) != StatusNotFound {
		t.Fatalf("StatusCode() = %d, want %d", StatusCode(err), StatusNotFound)
	}
	if got := strings.TrimSpace(resp.String()); got != `{"error":"Not found","fromCache":false}` {
		t.Fatalf("unexpected JSONError body: %s", got)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	want := []observed{
		{"GET", "/get/:question", StatusOK},
		{"GET", "/get/:question", StatusNotFound},
	}
	if len(obs.seen) != len(want) {
		t.Fatalf("observed %d requests, want %d: %v", len(obs.seen), len(want), obs.seen)
	}
	for i := range want {
		if obs.seen[i] != want[i] {
			t.Fatalf("request %d = %+v, want %+v", i, obs.seen[i], want[i])
		}
	}
}

func TestClientPathParamsEscape(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/get/:question", func(c Context) error {
			return c.JSON(StatusOK, map[string]string{"raw": c.Param("question")})
		})
	})
	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL() + "/"))
	var out map[string]string
	_, err := client.Get(context.Background(), "/get/{question}", &out,
		WithPathParams(map[string]string{"question": "what is go?"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := url.PathUnescape(out["raw"])
	if err != nil || got != "what is go?" {
		t.Fatalf("unexpected path param: %q (err=%v)", out["raw"], err)
	}
}

func TestValidatorMiddleware(t *testing.T) {
	validator := func(c Context) error {
		if c.Request().Header.Get("X-Allow") != "yes" {
			return HTTPError(StatusBadRequest, "blocked")
		}
		return nil
	}
	server := NewServer(WithValidators(validator))
	server.RegisterRoutes(func(a *App) {
		a.GET("/secure", func(c Context) error { return c.NoContent(StatusOK) })
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	// blocked
	if _, err := client.Get(context.Background(), "/secure", nil); err == nil {
		t.Fatalf("expected validation error")
	}

	// allowed
	resp, err := client.Get(context.Background(), "/secure", nil, WithRequestHeaders(map[string]string{"X-Allow": "yes"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
}

func TestCORSAndLoggerInjection(t *testing.T) {
	corsCfg := DefaultCORSConfig
	corsCfg.AllowOrigins = []string{"http://example.com"}
	server := NewServer(WithCORS(&corsCfg))
	server.RegisterRoutes(func(a *App) {
		a.GET("/ping", func(c Context) error { return c.NoContent(StatusOK) })
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))
	resp, err := client.Get(context.Background(), "/ping", nil, WithRequestHeaders(map[string]string{
		"Origin":                        "http://example.com",
		"Access-Control-Request-Method": "GET",
	}))
	if err != nil {
		t.Fatalf("options request failed: %v", err)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "http://example.com" {
		t.Fatalf("expected CORS allow origin header, got %q", resp.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRegisterRoutesBulkAndPostBody(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		RegisterRoutes(a,
			Route{Method: "GET", Path: "/r1", Handler: func(c Context) error {
				return c.JSON(StatusOK, map[string]string{"route": "r1"})
			}},
			Route{Method: "POST", Path: "/echo", Handler: func(c Context) error {
				var payload map[string]any
				if err := c.Bind(&payload); err != nil {
					return HTTPError(StatusBadRequest, "invalid body")
				}
				return c.JSON(StatusCreated, payload)
			}},
		)
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	// GET route
	var r1 map[string]string
	resp, err := client.Get(context.Background(), "/r1", &r1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK || r1["route"] != "r1" {
		t.Fatalf("unexpected response: status=%d body=%v", resp.StatusCode(), r1)
	}

	// POST with JSON body
	payload := map[string]string{"hello": "world"}
	var echoed map[string]string
	resp, err = client.Post(context.Background(), "/echo", payload, &echoed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusCreated || echoed["hello"] != "world" {
		t.Fatalf("unexpected POST response: status=%d body=%v", resp.StatusCode(), echoed)
	}
}

func TestClientRequestOptions(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/opts", func(c Context) error {
			authz := c.Request().Header.Get("Authorization")
			custom := c.Request().Header.Get("X-Custom")
			qp := c.QueryParam("q")
			return c.JSON(StatusOK, map[string]string{"auth": authz, "custom": custom, "q": qp})
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	var out map[string]string
	resp, err := client.Get(context.Background(), "/opts", &out,
		WithBearer("token123"),
		WithRequestHeaders(map[string]string{"X-Custom": "yes"}),
		WithQuery(map[string]string{"q": "search"}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
	if out["auth"] != "Bearer token123" || out["custom"] != "yes" || out["q"] != "search" {
		t.Fatalf("unexpected headers/query: %v", out)
	}
}

func TestClientRestyConfigHook(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/config", func(c Context) error {
			return c.JSON(StatusOK, map[string]string{"cfg": c.Request().Header.Get("X-Config")})
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(
		WithBaseURL(ts.BaseURL()),
		WithRestyConfig(func(rc RestClient) {
			rc.SetHeader("X-Config", "hooked")
		}),
	)

	var out map[string]string
	resp, err := client.Get(context.Background(), "/config", &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK || out["cfg"] != "hooked" {
		t.Fatalf("unexpected resty config result: status=%d body=%v", resp.StatusCode(), out)
	}
}
