package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/orchestrator"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/web"
)

var errNoHost = errors.New("no host application connected to /ws/events")

// hostTools are the tools the standalone server registers next to the
// built-in ones.
func hostTools() []tools.Definition {
	return []tools.Definition{
		{
			Name:        "get_current_time",
			Description: "Get the current date and time, optionally in a named IANA time zone.",
			Category:    "utility",
			Parameters: []tools.Parameter{
				{Name: "timezone", Type: tools.TypeString, Description: "IANA zone such as Europe/Berlin"},
			},
			Handler: currentTime,
		},
	}
}

func currentTime(_ context.Context, args map[string]any, _ tools.AppContext) (any, error) {
	now := time.Now()
	if tz, _ := args["timezone"].(string); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown time zone %q", tz)
		}
		now = now.In(loc)
	}
	return map[string]any{
		"time":     now.Format(time.RFC3339),
		"weekday":  now.Weekday().String(),
		"timezone": now.Location().String(),
	}, nil
}

// hostMessage is published on /ws/events for the browser host to act on.
type hostMessage struct {
	Type        string         `json:"type"`
	Action      string         `json:"action,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Destination string         `json:"destination,omitempty"`
}

// attachHost forwards execute_action and navigate to the browser host
// listening on /ws/events, and answers get_context from server state.
func attachHost(agent *orchestrator.Orchestrator, srv *web.Server) {
	events := srv.EventHub()

	agent.SetContextProvider(func(ctx context.Context) (tools.AppContext, error) {
		appCtx := tools.AppContext{
			"server_time": time.Now().Format(time.RFC3339),
			"status":      string(agent.Status()),
			"hosts":       events.ClientCount(),
		}
		if m, ok := agent.ActiveModel(); ok {
			appCtx["model"] = m.Key
		}
		return appCtx, nil
	})

	agent.SetActionExecutor(func(ctx context.Context, action string, params map[string]any) (any, error) {
		if events.ClientCount() == 0 {
			return nil, errNoHost
		}
		if err := events.BroadcastJSON(hostMessage{Type: "host_action", Action: action, Params: params}); err != nil {
			return nil, err
		}
		return map[string]any{"dispatched": action}, nil
	})

	agent.SetNavigationHandler(func(ctx context.Context, destination string) error {
		if events.ClientCount() == 0 {
			return errNoHost
		}
		return events.BroadcastJSON(hostMessage{Type: "host_navigate", Destination: destination})
	})
}
