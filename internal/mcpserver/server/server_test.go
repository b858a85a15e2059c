package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erauner12/mcptools/internal/mcpserver/config"
	"github.com/erauner12/mcptools/internal/mcpserver/dispatch"
	"github.com/erauner12/mcptools/internal/mcpserver/jsonrpc"
	"github.com/erauner12/mcptools/internal/mcpserver/tools"
	"github.com/erauner12/mcptools/internal/mcpserver/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*MCPServer, *httptest.Server) {
	t.Helper()

	registry := tools.NewRegistry()
	registry.MustRegister(tools.Definition{Name: "echo"}, tools.HandlerFunc(func(ctx context.Context, args value.Value) (any, error) {
		text, _, err := args.Field("text")
		if err != nil {
			return nil, err
		}
		s, _ := text.Str()
		return tools.TextResult(s), nil
	}))

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg, dispatch.New(registry))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return srv, ts
}

func post(t *testing.T, ts *httptest.Server, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) *jsonrpc.Response {
	t.Helper()
	var out jsonrpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return &out
}

func TestPost_InitializeIssuesSession(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	resp := post(t, ts, `{"jsonrpc":"2.0","method":"initialize","params":{},"id":1}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))

	sessionID := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, sessionID)
	_, err := srv.Sessions().GetSession(sessionID)
	assert.NoError(t, err)

	out := decode(t, resp)
	assert.Nil(t, out.Error)
	assert.JSONEq(t, `{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"mcptools","version":"0.1.0"}}`, string(out.Result))
}

func TestPost_ToolCallWithSession(t *testing.T) {
	_, ts := newTestServer(t, nil)

	initResp := post(t, ts, `{"jsonrpc":"2.0","method":"initialize","id":1}`, nil)
	sessionID := initResp.Header.Get(SessionHeader)

	resp := post(t, ts,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}},"id":7}`,
		map[string]string{SessionHeader: sessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":{"content":[{"type":"text","text":"hi"}]},"id":7}`, string(body))
}

func TestPost_WithoutSessionIsServed(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := post(t, ts, `{"jsonrpc":"2.0","method":"tools/list","id":"a"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.Equal(t, `"a"`, string(out.ID))
	assert.Contains(t, string(out.Result), `"echo"`)
}

func TestPost_UnknownSession(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := post(t, ts, `{"jsonrpc":"2.0","method":"tools/list","id":1}`, map[string]string{SessionHeader: "nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPost_Notification(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := post(t, ts, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestPost_EnvelopeErrors(t *testing.T) {
	_, ts := newTestServer(t, nil)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantID   string
	}{
		{"invalid json", `{"jsonrpc":`, jsonrpc.ParseError, "null"},
		{"wrong version", `{"jsonrpc":"1.0","method":"tools/list","id":3}`, jsonrpc.InvalidRequest, "3"},
		{"unknown method", `{"jsonrpc":"2.0","method":"ping","id":4}`, jsonrpc.MethodNotFound, "4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts, tt.body, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			out := decode(t, resp)
			require.NotNil(t, out.Error)
			assert.Equal(t, tt.wantCode, out.Error.Code)
			assert.Equal(t, tt.wantID, string(out.ID))
		})
	}
}

func TestDelete_ClosesSession(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	sessionID := post(t, ts, `{"jsonrpc":"2.0","method":"initialize","id":1}`, nil).Header.Get(SessionHeader)

	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
		require.NoError(t, err)
		req.Header.Set(SessionHeader, sessionID)
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusNoContent, del())
	assert.Equal(t, 0, srv.Sessions().Len())
	assert.Equal(t, http.StatusNotFound, del())

	// the closed session can no longer be used
	resp := post(t, ts, `{"jsonrpc":"2.0","method":"tools/list","id":1}`, map[string]string{SessionHeader: sessionID})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDelete_MissingSessionHeader(t *testing.T) {
	_, ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOriginAllowlist(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.AllowedOrigins = []string{"https://app.example"}
	})

	body := `{"jsonrpc":"2.0","method":"tools/list","id":1}`

	assert.Equal(t, http.StatusOK, post(t, ts, body, map[string]string{"Origin": "https://app.example"}).StatusCode)
	assert.Equal(t, http.StatusForbidden, post(t, ts, body, map[string]string{"Origin": "https://evil.example"}).StatusCode)
	assert.Equal(t, http.StatusForbidden, post(t, ts, body, nil).StatusCode)
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.AllowedOrigins = []string{"https://app.example"}
	})

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out["status"])
}

func TestCorrelationMiddleware_PreservesClientID(t *testing.T) {
	var seen string
	h := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
}

func TestNew_InvalidSessionTTL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SessionTTL = "soon"

	_, err := New(cfg, dispatch.New(tools.NewRegistry()))
	assert.Error(t, err)
}
