package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// ActionExecutor performs an execute_action call in the host application.
type ActionExecutor func(ctx context.Context, action string, params map[string]any) (any, error)

// NavigationHandler performs a navigate call in the host application.
type NavigationHandler func(ctx context.Context, destination string) error

// handleToolCall executes call and always answers it, so the vendor never
// waits on a dropped call.
func (o *Orchestrator) handleToolCall(sess *session, call tools.Call) {
	ctx, cancel := context.WithTimeout(sess.ctx, o.toolTimeout)
	defer cancel()

	start := time.Now()
	result := o.executeTool(ctx, call)
	resp := call.Respond(result)

	if sess.ended.Load() {
		o.logger.Debug("session ended before tool finished", "name", call.Name, "call_id", call.ID)
		return
	}

	sess.provider.SendToolResponse(resp)
	if trigger, ok := sess.provider.(voice.ResponseTrigger); ok {
		if err := trigger.RequestResponse(); err != nil {
			o.logger.Warn("response trigger failed", "name", call.Name, "error", err)
		}
	}
	o.watchdog.Arm(sess)

	o.metrics.ToolCall(call.Name, result.Success)
	o.logger.Info("tool call answered",
		"name", call.Name,
		"call_id", call.ID,
		"success", result.Success,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	o.bus.Emit(voice.Event{
		Type:         voice.EventToolResult,
		Provider:     sess.provider.Name(),
		Model:        sess.model.Key,
		ToolCall:     &call,
		ToolResponse: &resp,
	})
}

// ExecuteTool runs a tool outside the model's turn, for manual triggers from
// the control surface. Routing is the same as for model calls.
func (o *Orchestrator) ExecuteTool(ctx context.Context, name string, args map[string]any) tools.Result {
	ctx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	call := tools.Call{ID: uuid.NewString(), Name: name, Arguments: args, Timestamp: time.Now()}
	result := o.executeTool(ctx, call)
	o.metrics.ToolCall(name, result.Success)
	o.logger.Info("tool triggered manually", "name", name, "success", result.Success)
	return result
}

// HasTool reports whether name is a built-in or registered tool.
func (o *Orchestrator) HasTool(name string) bool {
	if tools.IsBuiltin(name) {
		return true
	}
	_, ok := o.registry.Get(name)
	return ok
}

// executeTool routes built-ins to the injected collaborators and everything
// else to the registry.
func (o *Orchestrator) executeTool(ctx context.Context, call tools.Call) (res tools.Result) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("tool panicked", "name", call.Name, "panic", p)
			res = tools.Failure("tool %s panicked: %v", call.Name, p)
		}
	}()

	switch call.Name {
	case tools.GetContext:
		return o.getContext(ctx)
	case tools.ExecuteAction:
		return o.executeAction(ctx, call.Arguments)
	case tools.Navigate:
		return o.navigate(ctx, call.Arguments)
	}
	return o.registry.Execute(ctx, call.Name, call.Arguments)
}

func (o *Orchestrator) getContext(ctx context.Context) tools.Result {
	o.mu.Lock()
	provider := o.contextProvider
	o.mu.Unlock()

	if provider == nil {
		return tools.Failure("no context provider configured")
	}
	snapshot, err := provider(ctx)
	if err != nil {
		return tools.Failure("get context: %v", err)
	}
	return tools.Success(snapshot)
}

func (o *Orchestrator) executeAction(ctx context.Context, args map[string]any) tools.Result {
	o.mu.Lock()
	exec := o.actions
	o.mu.Unlock()

	if exec == nil {
		return tools.Failure("no action executor configured")
	}
	action, _ := args["action"].(string)
	if action == "" {
		return tools.Failure("execute_action requires an action")
	}
	params, _ := args["params"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}

	data, err := exec(ctx, action, params)
	if err != nil {
		return tools.Failure("action %s failed: %v", action, err)
	}
	return tools.Success(data)
}

func (o *Orchestrator) navigate(ctx context.Context, args map[string]any) tools.Result {
	o.mu.Lock()
	handler := o.navigation
	o.mu.Unlock()

	if handler == nil {
		return tools.Failure("no navigation handler configured")
	}
	destination, _ := args["destination"].(string)
	if destination == "" {
		return tools.Failure("navigate requires a destination")
	}

	if err := handler(ctx, destination); err != nil {
		return tools.Failure("navigate to %s failed: %v", destination, err)
	}
	return tools.Success(map[string]any{"destination": destination})
}
