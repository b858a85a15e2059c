// Package greeter provides smoke-test tools for checking that a client can
// reach the server end to end.
package greeter

import (
	"context"
	"fmt"
	"time"

	"github.com/erauner12/mcptools/internal/mcpserver/tools"
	"github.com/erauner12/mcptools/internal/mcpserver/value"
	"github.com/rs/zerolog"
)

const (
	defaultName     = "World"
	timestampLayout = "2006-01-02 15:04:05"
)

// HelloParams are the arguments of test_hello
type HelloParams struct {
	Name string `json:"name" jsonschema:"description=Who to greet (defaults to World)"`
}

// EchoParams are the arguments of echo. Text must be present but may be empty.
type EchoParams struct {
	Text *string `json:"text" jsonschema:"description=Text to return unchanged" validate:"required"`
}

// Provider declares the greeter tools
type Provider struct {
	now func() time.Time
}

// Option configures a Provider
type Option func(*Provider)

// WithClock replaces the time source used in greetings
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// New creates the greeter provider
func New(opts ...Option) *Provider {
	p := &Provider{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements tools.Provider
func (p *Provider) Name() string { return "greeter" }

// Tools implements tools.Provider
func (p *Provider) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        "test_hello",
			Description: "A simple test tool that says hello",
			Input:       HelloParams{},
			Handler:     tools.HandlerFunc(p.hello),
		},
		{
			Name:        "echo",
			Description: "Echo the given text back",
			Input:       EchoParams{},
			Handler:     tools.HandlerFunc(p.echo),
		},
	}
}

func (p *Provider) hello(ctx context.Context, args value.Value) (any, error) {
	params, err := tools.Decode[HelloParams](args)
	if err != nil {
		return nil, err
	}

	name := params.Name
	if name == "" {
		name = defaultName
	}

	zerolog.Ctx(ctx).Debug().Str("name", name).Msg("Saying hello")

	return tools.TextResult(fmt.Sprintf("Hello, %s,%s! MCP server is working! ", name, p.now().Format(timestampLayout))), nil
}

func (p *Provider) echo(ctx context.Context, args value.Value) (any, error) {
	params, err := tools.Decode[EchoParams](args)
	if err != nil {
		return nil, err
	}
	return tools.TextResult(*params.Text), nil
}
