// Package tools provides the mock tool registry for the travel advisor
// persona.
//
// Tools are injected into every model CompletionRequest's tools parameter and
// dispatched to local handlers when the model requests them. All shipped
// tools are deterministic mocks: probe runs must not depend on live external
// services, and a fixed tool surface keeps verdicts comparable across model
// families.
package tools

import (
	"context"

	"github.com/probelabs/memprobe/internal/probe/llm"
)

// Tool is the interface all registered tools must implement.
type Tool interface {
	// Definition returns the model-facing tool definition containing the
	// name, description, and JSON Schema parameter specification.
	Definition() llm.ToolDefinition

	// Execute runs the tool with the given (JSON-decoded) arguments and
	// returns a result string for the model, or an error.
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds all registered tools and provides name-based lookup.
// It is not safe to call Register concurrently with Has, Get, or
// Definitions: populate the registry at startup before serving requests.
type Registry struct {
	tools map[string]Tool
}

// New returns an empty Registry ready for tool registration.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewTravel returns a Registry pre-populated with the travel advisor tools.
func NewTravel() *Registry {
	r := New()
	r.Register(&WeatherLookup{})
	r.Register(&FlightSearch{})
	r.Register(&HotelSearch{})
	r.Register(&CurrencyConverter{})
	return r
}

// Register adds t to the registry. It panics if a tool with the same
// Definition().Function.Name is already registered, which indicates a
// programming error in the registration sequence.
func (r *Registry) Register(t Tool) {
	name := t.Definition().Function.Name
	if _, dup := r.tools[name]; dup {
		panic("tools: duplicate tool registration: " + name)
	}
	r.tools[name] = t
}

// Has reports whether name is handled by this registry.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Get returns the Tool registered under name, or nil when not found.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Definitions returns model tool definitions for all registered tools.
// The slice order is non-deterministic (map iteration); model providers
// treat tools as an unordered set so this is safe.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}
