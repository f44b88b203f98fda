// Package tools defines the capability interface the generation driver uses
// to execute model-requested tool calls, and the registry that scopes the
// available tools per run.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/korefocus/diligence/runtime/chat/model"
	"github.com/korefocus/diligence/runtime/chat/stream"
)

// Ident is a tool identifier as advertised to the model.
type Ident string

// String returns the identifier as a plain string.
func (id Ident) String() string { return string(id) }

type (
	// Tool is one capability the model can invoke. Implementations receive
	// the raw JSON payload generated by the model and the run's emitter so
	// they can stream progress and artifact events while executing. The
	// returned value is fed back to the model verbatim as the tool result.
	Tool interface {
		// Name returns the identifier advertised to the model.
		Name() Ident

		// Definition returns the schema passed to the provider.
		Definition() *model.ToolDefinition

		// Invoke executes the tool. Implementations validate payload
		// themselves; a validation failure is returned as an error and
		// surfaces to the model as an error result.
		Invoke(ctx context.Context, payload json.RawMessage, em *stream.Emitter) (any, error)
	}

	// Registry holds the tools available to a run. Safe for concurrent use.
	Registry struct {
		mu    sync.RWMutex
		tools map[Ident]Tool
	}
)

// ErrUnknownTool is returned by Invoke for names not present in the registry.
var ErrUnknownTool = errors.New("unknown tool")

// NewRegistry constructs a registry holding the given tools. Duplicate names
// are rejected.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[Ident]Tool, len(ts))}
	for _, t := range ts {
		if t == nil {
			return nil, errors.New("tool is required")
		}
		if _, ok := r.tools[t.Name()]; ok {
			return nil, fmt.Errorf("duplicate tool %q", t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r, nil
}

// Definitions returns the schemas of all registered tools in name order.
func (r *Registry) Definitions() []*model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, string(name))
	}
	sort.Strings(names)
	defs := make([]*model.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[Ident(name)].Definition())
	}
	return defs
}

// Invoke dispatches a tool call by name. Returns ErrUnknownTool for names the
// registry does not hold, wrapped with the offending name.
func (r *Registry) Invoke(ctx context.Context, name Ident, payload json.RawMessage, em *stream.Emitter) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t.Invoke(ctx, payload, em)
}
