// Package clock provides time tools, including an asynchronous sleep used to
// exercise long-running calls.
package clock

import (
	"context"
	"time"

	"github.com/erauner12/mcptools/internal/mcpserver/tools"
	"github.com/erauner12/mcptools/internal/mcpserver/value"
	"github.com/rs/zerolog"
)

// MaxSleep caps clock_sleep
const MaxSleep = time.Minute

// NowParams are the arguments of clock_now
type NowParams struct {
	Timezone string `json:"timezone" jsonschema:"description=IANA time zone name, UTC when empty"`
}

// AddParams are the arguments of clock_add
type AddParams struct {
	From     time.Time `json:"from" jsonschema:"description=Starting instant (RFC 3339)" validate:"required"`
	Duration string    `json:"duration" jsonschema:"description=Go duration to add, e.g. 90m or -2h" validate:"required"`
}

// SleepParams are the arguments of clock_sleep
type SleepParams struct {
	Milliseconds int `json:"milliseconds" jsonschema:"description=How long to wait" validate:"gte=0,lte=60000"`
}

// Provider declares the clock tools
type Provider struct {
	now func() time.Time
}

// New creates the clock provider. now defaults to time.Now when nil.
func New(now func() time.Time) *Provider {
	if now == nil {
		now = time.Now
	}
	return &Provider{now: now}
}

// Name implements tools.Provider
func (p *Provider) Name() string { return "clock" }

// Tools implements tools.Provider
func (p *Provider) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        "clock_now",
			Description: "Current time in RFC 3339 format",
			Input:       NowParams{},
			Handler:     tools.HandlerFunc(p.current),
		},
		{
			Name:        "clock_add",
			Description: "Add a duration to an instant",
			Input:       AddParams{},
			Handler:     tools.HandlerFunc(p.add),
		},
		{
			Name:        "clock_sleep",
			Description: "Wait for the given number of milliseconds, then report how long it waited",
			Input:       SleepParams{},
			Handler:     tools.AsyncHandlerFunc(p.sleep),
		},
	}
}

func (p *Provider) current(ctx context.Context, args value.Value) (any, error) {
	params, err := tools.Decode[NowParams](args)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	if params.Timezone != "" {
		loc, err = time.LoadLocation(params.Timezone)
		if err != nil {
			return nil, tools.NewToolError(tools.ErrCodeInvalidParams, "Unknown timezone: "+params.Timezone, map[string]any{
				"timezone": params.Timezone,
			})
		}
	}

	return tools.TextResult(p.now().In(loc).Format(time.RFC3339)), nil
}

func (p *Provider) add(ctx context.Context, args value.Value) (any, error) {
	params, err := tools.Decode[AddParams](args)
	if err != nil {
		return nil, err
	}

	d, err := time.ParseDuration(params.Duration)
	if err != nil {
		return nil, tools.NewToolError(tools.ErrCodeInvalidParams, "Invalid duration: "+params.Duration, map[string]any{
			"duration": params.Duration,
		})
	}

	return tools.TextResult(params.From.Add(d).Format(time.RFC3339)), nil
}

func (p *Provider) sleep(ctx context.Context, args value.Value) <-chan tools.Outcome {
	out := make(chan tools.Outcome, 1)

	params, err := tools.Decode[SleepParams](args)
	if err != nil {
		out <- tools.Outcome{Err: err}
		return out
	}

	wait := time.Duration(params.Milliseconds) * time.Millisecond
	if wait > MaxSleep {
		wait = MaxSleep
	}

	go func() {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
			zerolog.Ctx(ctx).Debug().Dur("waited", wait).Msg("Sleep finished")
			out <- tools.Outcome{Result: tools.TextResult("Slept for " + wait.String())}
		case <-ctx.Done():
			out <- tools.Outcome{Err: ctx.Err()}
		}
	}()

	return out
}
