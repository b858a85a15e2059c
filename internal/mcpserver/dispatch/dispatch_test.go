package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/erauner12/mcptools/internal/mcpserver/jsonrpc"
	"github.com/erauner12/mcptools/internal/mcpserver/tools"
	"github.com/erauner12/mcptools/internal/mcpserver/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoParams struct {
	Text string `json:"text" validate:"required"`
}

type testProvider struct {
	tools []tools.Tool
}

func (p testProvider) Name() string        { return "test" }
func (p testProvider) Tools() []tools.Tool { return p.tools }

func echoTool() tools.Tool {
	return tools.Tool{
		Name:        "echo",
		Description: "Echo text back",
		Input:       echoParams{},
		Handler: tools.HandlerFunc(func(ctx context.Context, args value.Value) (any, error) {
			params, err := tools.Decode[echoParams](args)
			if err != nil {
				return nil, err
			}
			return tools.TextResult(params.Text), nil
		}),
	}
}

func newTestDispatcher(t *testing.T, extra ...tools.Tool) *Dispatcher {
	t.Helper()
	registry := tools.NewRegistry(testProvider{tools: append([]tools.Tool{echoTool()}, extra...)})
	require.NoError(t, registry.Init())
	return New(registry)
}

func decodeRequest(t *testing.T, raw string) *jsonrpc.Request {
	t.Helper()
	var req jsonrpc.Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	return &req
}

func handle(t *testing.T, d *Dispatcher, raw string) string {
	t.Helper()
	resp := d.Handle(context.Background(), decodeRequest(t, raw))
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(out)
}

func TestHandle_EchoEndToEnd(t *testing.T) {
	d := newTestDispatcher(t)

	got := handle(t, d, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}},"id":7}`)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":{"content":[{"type":"text","text":"hi"}]},"id":7}`, got)
}

func TestHandle_IDEcho(t *testing.T) {
	d := newTestDispatcher(t)

	tests := []struct {
		name   string
		id     string
		wantID string
	}{
		{"numeric", `,"id":42`, `42`},
		{"string", `,"id":"abc-1"`, `"abc-1"`},
		{"null", `,"id":null`, `null`},
		{"absent", ``, `null`},
	}

	methods := []string{"initialize", "tools/list", "tools/call", "notifications/initialized", "nope"}

	for _, tt := range tests {
		for _, method := range methods {
			t.Run(tt.name+"/"+method, func(t *testing.T) {
				got := handle(t, d, `{"jsonrpc":"2.0","method":"`+method+`"`+tt.id+`}`)

				var envelope map[string]json.RawMessage
				require.NoError(t, json.Unmarshal([]byte(got), &envelope))
				assert.JSONEq(t, tt.wantID, string(envelope["id"]))
			})
		}
	}
}

func TestHandle_Initialize(t *testing.T) {
	registry := tools.NewRegistry()
	d := New(registry, WithServerInfo("demo", "1.2.3"), WithProtocolVersion("2025-03-26"))

	got := handle(t, d, `{"jsonrpc":"2.0","method":"initialize","params":{},"id":1}`)
	assert.JSONEq(t, `{
		"jsonrpc":"2.0","id":1,
		"result":{
			"protocolVersion":"2025-03-26",
			"capabilities":{"tools":{}},
			"serverInfo":{"name":"demo","version":"1.2.3"}
		}
	}`, got)
}

func TestHandle_InitializeDefaults(t *testing.T) {
	d := New(tools.NewRegistry())

	got := handle(t, d, `{"jsonrpc":"2.0","method":"initialize","id":1}`)
	assert.JSONEq(t, `{
		"jsonrpc":"2.0","id":1,
		"result":{
			"protocolVersion":"2024-11-05",
			"capabilities":{"tools":{}},
			"serverInfo":{"name":"mcptools","version":"0.1.0"}
		}
	}`, got)
}

func TestHandle_Initialized(t *testing.T) {
	d := newTestDispatcher(t)

	got := handle(t, d, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"result":{}}`, got)
}

func TestHandle_ToolsList(t *testing.T) {
	d := newTestDispatcher(t, tools.Tool{
		Name: "bare",
		Handler: tools.HandlerFunc(func(ctx context.Context, args value.Value) (any, error) {
			return tools.TextResult(""), nil
		}),
	})

	got := handle(t, d, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	assert.JSONEq(t, `{
		"jsonrpc":"2.0","id":1,
		"result":{"tools":[
			{"name":"echo","description":"Echo text back","inputSchema":{"type":"object","properties":{"text":{"type":"string"}}}},
			{"name":"bare","description":"","inputSchema":{"type":"object","properties":{}}}
		]}
	}`, got)
}

func TestHandle_Errors(t *testing.T) {
	d := newTestDispatcher(t,
		tools.Tool{
			Name: "fails",
			Handler: tools.HandlerFunc(func(ctx context.Context, args value.Value) (any, error) {
				return nil, errors.New("disk on fire")
			}),
		},
		tools.Tool{
			Name: "panics",
			Handler: tools.HandlerFunc(func(ctx context.Context, args value.Value) (any, error) {
				panic("boom")
			}),
		},
		tools.Tool{
			Name: "wrong_shape",
			Handler: tools.HandlerFunc(func(ctx context.Context, args value.Value) (any, error) {
				return map[string]any{"content": "nope"}, nil
			}),
		},
		tools.Tool{
			Name: "nil_result",
			Handler: tools.HandlerFunc(func(ctx context.Context, args value.Value) (any, error) {
				var r *tools.Result
				return r, nil
			}),
		},
	)

	tests := []struct {
		name     string
		request  string
		wantCode int
		wantMsg  string
	}{
		{"unknown method", `{"jsonrpc":"2.0","method":"resources/list","id":1}`, jsonrpc.MethodNotFound, "Method not found: resources/list"},
		{"ping is not served", `{"jsonrpc":"2.0","method":"ping","id":1}`, jsonrpc.MethodNotFound, ""},
		{"missing params", `{"jsonrpc":"2.0","method":"tools/call","id":1}`, jsonrpc.InvalidParams, ""},
		{"params not object", `{"jsonrpc":"2.0","method":"tools/call","params":[1],"id":1}`, jsonrpc.InvalidParams, ""},
		{"missing name", `{"jsonrpc":"2.0","method":"tools/call","params":{"arguments":{}},"id":1}`, jsonrpc.InvalidParams, ""},
		{"name not string", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":5},"id":1}`, jsonrpc.InvalidParams, ""},
		{"unknown tool", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"ghost"},"id":1}`, jsonrpc.InvalidParams, "Unknown tool: ghost"},
		{"invalid arguments", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{}},"id":1}`, jsonrpc.InvalidParams, ""},
		{"handler failure", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"fails"},"id":1}`, jsonrpc.InternalError, "Error executing tool fails: disk on fire"},
		{"handler panic", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"panics"},"id":1}`, jsonrpc.InternalError, "Error executing tool panics: panic: boom"},
		{"shape mismatch", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"wrong_shape"},"id":1}`, jsonrpc.InternalError, ""},
		{"nil result", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"nil_result"},"id":1}`, jsonrpc.InternalError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Handle(context.Background(), decodeRequest(t, tt.request))

			require.NotNil(t, resp.Error)
			assert.Nil(t, resp.Result)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Error.Message)
			}

			// the absent member is omitted, not null
			out, err := json.Marshal(resp)
			require.NoError(t, err)
			assert.NotContains(t, string(out), `"result"`)
		})
	}
}

func TestHandle_ArgumentsDefaultToEmptyObject(t *testing.T) {
	var seen value.Value
	d := newTestDispatcher(t, tools.Tool{
		Name: "inspect",
		Handler: tools.HandlerFunc(func(ctx context.Context, args value.Value) (any, error) {
			seen = args
			return tools.Result{Content: []tools.Content{{Type: "text", Text: "ok"}}}, nil
		}),
	})

	for _, params := range []string{`{"name":"inspect"}`, `{"name":"inspect","arguments":null}`} {
		resp := d.Handle(context.Background(), decodeRequest(t, `{"jsonrpc":"2.0","method":"tools/call","params":`+params+`,"id":1}`))
		require.Nil(t, resp.Error)
		assert.Equal(t, value.Object, seen.Kind())
		assert.Equal(t, 0, seen.Len())
	}
}

func TestHandle_AsyncHandler(t *testing.T) {
	d := newTestDispatcher(t, tools.Tool{
		Name: "later",
		Handler: tools.AsyncHandlerFunc(func(ctx context.Context, args value.Value) <-chan tools.Outcome {
			ch := make(chan tools.Outcome, 1)
			go func() {
				ch <- tools.Outcome{Result: tools.TextResult("eventually")}
			}()
			return ch
		}),
	})

	got := handle(t, d, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"later"},"id":"x"}`)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"x","result":{"content":[{"type":"text","text":"eventually"}]}}`, got)
}

func TestHandle_RegistryInitFailure(t *testing.T) {
	registry := tools.NewRegistry(testProvider{tools: []tools.Tool{{Name: "broken"}}})
	require.Error(t, registry.Init())

	d := New(registry)

	for _, method := range []string{"tools/list", "tools/call"} {
		resp := d.Handle(context.Background(), decodeRequest(t, `{"jsonrpc":"2.0","method":"`+method+`","params":{"name":"broken"},"id":1}`))
		require.NotNil(t, resp.Error, method)
		assert.Equal(t, jsonrpc.InternalError, resp.Error.Code)
	}

	// initialize does not need the registry
	resp := d.Handle(context.Background(), decodeRequest(t, `{"jsonrpc":"2.0","method":"initialize","id":1}`))
	assert.Nil(t, resp.Error)
}

func TestHandle_ConcurrentCalls(t *testing.T) {
	d := newTestDispatcher(t, tools.Tool{
		Name:  "shout",
		Input: echoParams{},
		Handler: tools.AsyncHandlerFunc(func(ctx context.Context, args value.Value) <-chan tools.Outcome {
			ch := make(chan tools.Outcome, 1)
			go func() {
				params, err := tools.Decode[echoParams](args)
				if err != nil {
					ch <- tools.Outcome{Err: err}
					return
				}
				ch <- tools.Outcome{Result: tools.TextResult(params.Text + "!")}
			}()
			return ch
		}),
	})

	const n = 64
	var wg sync.WaitGroup
	results := make([]*jsonrpc.Response, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tool := "echo"
			if i%2 == 1 {
				tool = "shout"
			}
			raw := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":%q,"arguments":{"text":"msg-%d"}},"id":%d}`, tool, i, i)
			var req jsonrpc.Request
			if err := json.Unmarshal([]byte(raw), &req); err != nil {
				t.Error(err)
				return
			}
			results[i] = d.Handle(context.Background(), &req)
		}(i)
	}
	wg.Wait()

	for i, resp := range results {
		require.NotNil(t, resp, "request %d", i)
		require.Nil(t, resp.Error, "request %d", i)
		assert.Equal(t, fmt.Sprint(i), string(resp.ID))

		want := fmt.Sprintf("msg-%d", i)
		if i%2 == 1 {
			want += "!"
		}
		var result tools.Result
		require.NoError(t, json.Unmarshal(resp.Result, &result))
		assert.Equal(t, want, result.Content[0].Text)
	}
}
