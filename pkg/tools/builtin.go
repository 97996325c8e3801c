package tools

// Names of the built-in tools. The orchestrator answers these itself using
// collaborators injected by the host application, so they are never
// registered in a Registry.
const (
	GetContext    = "get_context"
	ExecuteAction = "execute_action"
	Navigate      = "navigate"
)

// IsBuiltin reports whether name is one of the built-in tools.
func IsBuiltin(name string) bool {
	switch name {
	case GetContext, ExecuteAction, Navigate:
		return true
	}
	return false
}

// Builtins returns the schemas advertised to the model for the built-in tools.
// The definitions carry no Handler.
func Builtins() []Definition {
	return []Definition{
		{
			Name:            GetContext,
			Description:     "Get the current application context: the page the user is on, the selected record, and anything else the host exposes.",
			Category:        "builtin",
			RequiresContext: true,
		},
		{
			Name:        ExecuteAction,
			Description: "Execute an action in the host application on behalf of the user.",
			Category:    "builtin",
			Parameters: []Parameter{
				{Name: "action", Type: TypeString, Description: "Action identifier", Required: true},
				{Name: "params", Type: TypeObject, Description: "Action parameters"},
			},
		},
		{
			Name:        Navigate,
			Description: "Navigate the host application to another page or view.",
			Category:    "builtin",
			Parameters: []Parameter{
				{Name: "destination", Type: TypeString, Description: "Route or page name", Required: true},
			},
		},
	}
}
