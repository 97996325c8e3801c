package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry errors.
var (
	// ErrDuplicateTool is returned when a name is registered twice.
	ErrDuplicateTool = errors.New("tools: duplicate tool name")

	// ErrInvalidTool is returned for definitions without a name or handler.
	ErrInvalidTool = errors.New("tools: invalid tool definition")
)

// Registry holds tool definitions keyed by name, in registration order.
// Registration happens at startup; Execute is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Definition
	order      []string
	categories map[string]struct{}

	contextProvider ContextProvider
	logger          *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:      make(map[string]Definition),
		categories: make(map[string]struct{}),
		logger:     logger.With("component", "tools.registry"),
	}
}

// Register adds a tool. Duplicate names and built-in names are rejected.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}
	if def.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidTool, def.Name)
	}
	if IsBuiltin(def.Name) {
		return fmt.Errorf("%w: %s is a built-in tool", ErrDuplicateTool, def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}

	r.tools[def.Name] = def
	r.order = append(r.order, def.Name)
	if def.Category != "" {
		r.categories[def.Category] = struct{}{}
	}

	r.logger.Debug("tool registered", "name", def.Name, "category", def.Category)
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns all tools in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name])
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Categories returns the distinct category tags, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cats := make([]string, 0, len(r.categories))
	for c := range r.categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// SetContextProvider injects the source of AppContext snapshots.
func (r *Registry) SetContextProvider(p ContextProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contextProvider = p
}

// Execute runs the named tool. It never returns an error: unknown tools,
// context failures, handler errors and handler panics all become error Results.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res Result) {
	r.mu.RLock()
	def, ok := r.tools[name]
	provider := r.contextProvider
	r.mu.RUnlock()

	if !ok {
		return Failure("unknown tool: %s", name)
	}

	if args == nil {
		args = map[string]any{}
	}

	var appCtx AppContext
	if def.RequiresContext {
		if provider == nil {
			return Failure("tool %s requires application context but no context provider is set", name)
		}
		snapshot, err := provider(ctx)
		if err != nil {
			return Failure("tool %s: get context: %v", name, err)
		}
		appCtx = snapshot
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "name", name, "panic", p)
			res = Failure("tool %s panicked: %v", name, p)
		}
	}()

	data, err := def.Handler(ctx, args, appCtx)
	if err != nil {
		r.logger.Warn("tool failed", "name", name, "error", err)
		return Result{Error: err.Error()}
	}
	return Success(data)
}

// ToGeminiFormat renders the catalogue as Gemini function declarations.
func (r *Registry) ToGeminiFormat() []*FunctionDeclaration {
	return GeminiDeclarations(r.List())
}

// ToOpenAIFormat renders the catalogue as an OpenAI Realtime tools array.
func (r *Registry) ToOpenAIFormat() []OpenAITool {
	return OpenAITools(r.List())
}

// ToJSONSchema renders the catalogue in a generic JSON-Schema form.
func (r *Registry) ToJSONSchema() []SchemaTool {
	return JSONSchemaTools(r.List())
}
