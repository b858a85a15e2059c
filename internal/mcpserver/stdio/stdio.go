// Package stdio serves the dispatcher over newline-delimited JSON-RPC on a
// reader/writer pair, normally the process's stdin and stdout.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/erauner12/mcptools/internal/mcpserver/jsonrpc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxConcurrency bounds in-flight requests when Options leaves it unset
	DefaultMaxConcurrency = 8

	maxLineSize = 10 * 1024 * 1024
)

// Dispatcher is the part of dispatch.Dispatcher the loop needs
type Dispatcher interface {
	Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response
}

// Options configures the stdio server
type Options struct {
	MaxConcurrency int
	Logger         *zerolog.Logger
}

// Server reads requests line by line and writes one response line per request
type Server struct {
	dispatcher     Dispatcher
	maxConcurrency int
	logger         zerolog.Logger

	writeMu sync.Mutex
}

// New creates a stdio server
func New(dispatcher Dispatcher, opts Options) *Server {
	s := &Server{
		dispatcher:     dispatcher,
		maxConcurrency: opts.MaxConcurrency,
		logger:         log.Logger,
	}
	if s.maxConcurrency <= 0 {
		s.maxConcurrency = DefaultMaxConcurrency
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	s.logger = s.logger.With().Str("transport", "stdio").Logger()
	return s
}

// Serve runs until r is exhausted, ctx is cancelled, or a write fails.
// Requests are dispatched concurrently, so responses may be written out of
// request order; clients correlate them by id. Serve waits for in-flight
// requests before returning.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	s.logger.Info().Int("maxConcurrency", s.maxConcurrency).Msg("Serving MCP over stdio")

	for scanner.Scan() {
		if gctx.Err() != nil {
			break
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req jsonrpc.Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to parse request")
			if err := s.write(w, jsonrpc.NewError(nil, jsonrpc.ParseError, "Parse error: "+err.Error())); err != nil {
				return err
			}
			continue
		}

		g.Go(func() error {
			return s.serveRequest(gctx, w, &req)
		})
	}

	waitErr := g.Wait()
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "stdin read error")
	}
	if waitErr != nil {
		return waitErr
	}
	return ctx.Err()
}

func (s *Server) serveRequest(ctx context.Context, w io.Writer, req *jsonrpc.Request) error {
	var resp *jsonrpc.Response
	if req.JSONRPC != jsonrpc.Version {
		resp = jsonrpc.NewError(req.ID, jsonrpc.InvalidRequest, "invalid jsonrpc version")
	} else {
		resp = s.dispatcher.Handle(s.logger.WithContext(ctx), req)
	}

	if req.IsNotification() {
		return nil
	}
	return s.write(w, resp)
}

func (s *Server) write(w io.Writer, resp *jsonrpc.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "failed to marshal response")
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write response")
	}
	return nil
}
