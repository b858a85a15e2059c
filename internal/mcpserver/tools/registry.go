package tools

import (
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/erauner12/mcptools/internal/mcpserver/schema"
	"github.com/rs/zerolog/log"
)

// Registry manages tool definitions and their handlers
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*toolEntry
	ordering []string // Preserve registration order for consistent tools/list

	providers []Provider
	initOnce  sync.Once
	initErr   error
}

type toolEntry struct {
	def     Definition
	handler Handler
}

// NewRegistry creates a registry that discovers tools from providers on Init
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{
		tools:     make(map[string]*toolEntry),
		providers: providers,
	}
}

// Init folds every provider's tools into the registry. The build runs once;
// later and concurrent callers get the result of that single build.
func (r *Registry) Init() error {
	r.initOnce.Do(func() {
		r.initErr = r.discover()
	})
	return r.initErr
}

func (r *Registry) discover() error {
	for _, p := range r.providers {
		if p == nil {
			return errors.Wrap(ErrProviderContract, "nil provider")
		}

		for _, tool := range p.Tools() {
			def, err := definitionFor(tool)
			if err != nil {
				return errors.Wrapf(err, "provider %s", p.Name())
			}
			if err := r.Register(def, tool.Handler); err != nil {
				return errors.Wrapf(err, "provider %s", p.Name())
			}

			log.Debug().
				Str("provider", p.Name()).
				Str("tool", def.Name).
				Msg("Discovered tool")
		}
	}
	return nil
}

func definitionFor(tool Tool) (Definition, error) {
	if tool.Name == "" {
		return Definition{}, errors.Wrap(ErrProviderContract, "tool name cannot be empty")
	}
	if tool.Handler == nil {
		return Definition{}, errors.Wrapf(ErrProviderContract, "tool %s has no handler", tool.Name)
	}

	inputSchema := tool.Schema
	if inputSchema == nil && tool.Input != nil {
		var err error
		inputSchema, err = schema.For(reflect.TypeOf(tool.Input))
		if err != nil {
			return Definition{}, errors.Wrapf(errors.Mark(err, ErrProviderContract), "tool %s input", tool.Name)
		}
	}

	return Definition{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: inputSchema,
	}, nil
}

// Register adds a tool definition and handler to the registry.
// Registering an existing name replaces it in place.
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return errors.New("tool name cannot be empty")
	}
	if handler == nil {
		return errors.Newf("handler for tool %s cannot be nil", def.Name)
	}
	if def.InputSchema == nil {
		def.InputSchema = schema.Empty()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; !exists {
		r.ordering = append(r.ordering, def.Name)
	}
	r.tools[def.Name] = &toolEntry{
		def:     def,
		handler: handler,
	}

	return nil
}

// MustRegister registers a tool or panics on error (for init-time registration)
func (r *Registry) MustRegister(def Definition, handler Handler) {
	if err := r.Register(def, handler); err != nil {
		panic(err)
	}
}

// List returns all registered tool definitions (for tools/list response)
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.ordering))
	for _, name := range r.ordering {
		defs = append(defs, r.tools[name].def)
	}

	return defs
}

// Has reports whether a tool is registered under name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Resolve returns the handler registered under name
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.tools[name]
	if !exists {
		return nil, false
	}
	return entry.handler, true
}

// Get retrieves a tool definition by name
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.tools[name]
	if !exists {
		return nil, false
	}

	def := entry.def
	return &def, true
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
