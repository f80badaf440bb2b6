// Package tools implements the functions the model may call during an
// inquiry and the dispatcher that runs them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/teilomillet/concierge/server/chat"
	"github.com/teilomillet/concierge/server/completion"
)

// Call carries everything a tool handler may use.
type Call struct {
	// Arguments is the validated JSON object produced by the model
	Arguments json.RawMessage
	// Inquiry is the customer's current message
	Inquiry string
	// Context is the trimmed conversation history
	Context []chat.Turn
}

// Handler executes one tool. Failures are reported in the returned result
// so the model can react to them.
type Handler interface {
	Declaration() completion.Tool
	Handle(ctx context.Context, call Call) chat.ToolResult
}

// Registry maps tool names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry holding handlers. It panics on duplicate
// names, which is a programming error.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds h under its declared name.
func (r *Registry) Register(h Handler) error {
	name := h.Declaration().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns tool declarations ordered by name.
func (r *Registry) Declarations() []completion.Tool {
	names := r.Names()
	decls := make([]completion.Tool, 0, len(names))
	for _, name := range names {
		h, _ := r.Lookup(name)
		decls = append(decls, h.Declaration())
	}
	return decls
}
