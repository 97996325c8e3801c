// Package tools provides a vendor-neutral catalogue of functions the model can
// invoke during a voice session, plus converters to each vendor's
// function-calling schema.
package tools

import (
	"context"
	"fmt"
	"time"
)

// ParamType is the semantic type of a tool parameter.
type ParamType string

// Parameter types understood by every converter.
const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Parameter describes one argument of a tool.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Default     any       `json:"default,omitempty"`

	// Items is the element type when Type is TypeArray. Defaults to string.
	Items ParamType `json:"items,omitempty"`
}

// AppContext is a snapshot of application state handed to tools that
// declare RequiresContext.
type AppContext map[string]any

// ContextProvider fetches a fresh AppContext snapshot.
type ContextProvider func(ctx context.Context) (AppContext, error)

// Handler executes a tool. appCtx is nil unless the tool requires context.
type Handler func(ctx context.Context, args map[string]any, appCtx AppContext) (any, error)

// Definition describes a tool the model can invoke.
type Definition struct {
	// Name is the unique identifier the model uses (e.g. "get_weather").
	Name string `json:"name"`

	// Description helps the model decide when to call the tool.
	Description string `json:"description"`

	// Parameters are rendered in declaration order by every converter.
	Parameters []Parameter `json:"parameters,omitempty"`

	// Category is a free-form grouping tag.
	Category string `json:"category,omitempty"`

	// RequiresContext makes the registry fetch an AppContext before calling Handler.
	RequiresContext bool `json:"requires_context,omitempty"`

	Handler Handler `json:"-"`
}

// Result is the structured outcome of a tool execution.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success wraps data in a successful Result.
func Success(data any) Result {
	return Result{Success: true, Data: data}
}

// Failure builds an error Result.
func Failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Call is a model-initiated tool invocation.
type Call struct {
	// ID correlates the call with its Response.
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Timestamp time.Time      `json:"timestamp"`
}

// Response answers a Call.
type Response struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Result    Result    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// Respond builds the Response for c carrying r.
func (c Call) Respond(r Result) Response {
	return Response{
		ID:        c.ID,
		Name:      c.Name,
		Result:    r,
		Timestamp: time.Now(),
	}
}

// Payload returns the value sent back to the model: the data on success,
// or an object carrying the error message.
func (r Response) Payload() map[string]any {
	if !r.Result.Success {
		return map[string]any{"error": r.Result.Error}
	}
	return map[string]any{"result": r.Result.Data}
}
