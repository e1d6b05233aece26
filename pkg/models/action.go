package models

// Action is the dispatch payload of a Job, stored as a JSON document. At
// creation it holds exactly one command entry, keyed by opcode for agent
// commands or under "rats" for rat invocations. When the agent reports back,
// a "result" entry is merged in on success, or "error" (and optionally
// "exception") on failure. The typed accessors below are the only place the
// document keys are interpreted.
type Action map[string]any

// NewCommandAction builds the payload for an agent command: {op: args}.
func NewCommandAction(op string, args map[string]any) Action {
	if args == nil {
		args = map[string]any{}
	}
	return Action{op: args}
}

// NewRatAction builds the payload for a rat invocation.
func NewRatAction(hostname string, name int, function string, params map[string]any) Action {
	if params == nil {
		params = map[string]any{}
	}
	return Action{"rats": map[string]any{
		"hostname":   hostname,
		"name":       name,
		"function":   function,
		"parameters": params,
	}}
}

// SuccessPatch is the action fragment an agent reports for a completed command.
func SuccessPatch(result any) Action {
	return Action{"result": result}
}

// FailurePatch is the action fragment for a failed command. exception may be empty.
func FailurePatch(errText, exception string) Action {
	p := Action{"error": errText}
	if exception != "" {
		p["exception"] = exception
	}
	return p
}

// RatInvocation is the decoded form of an Action's "rats" entry.
type RatInvocation struct {
	Hostname   string         `json:"hostname"`
	Name       int            `json:"name"`
	Function   string         `json:"function"`
	Parameters map[string]any `json:"parameters"`
}

// Result returns the completion payload, when the agent has reported one.
func (a Action) Result() (any, bool) {
	v, ok := a["result"]
	return v, ok
}

// ErrorText returns the failure reason reported by the agent backend, or ""
// when none was recorded.
func (a Action) ErrorText() string {
	s, _ := asString(a["error"])
	return s
}

// Exception returns the agent-supplied exception text accompanying an
// "agents exception" failure, or "" when none was recorded.
func (a Action) Exception() string {
	s, _ := asString(a["exception"])
	return s
}

// Rats decodes the rat invocation entry. ok is false when this action is not
// a rat command.
func (a Action) Rats() (RatInvocation, bool) {
	raw, ok := a["rats"].(map[string]any)
	if !ok {
		return RatInvocation{}, false
	}
	inv := RatInvocation{Parameters: map[string]any{}}
	inv.Hostname, _ = asString(raw["hostname"])
	inv.Name, _ = asInt(raw["name"])
	inv.Function, _ = asString(raw["function"])
	if p, ok := raw["parameters"].(map[string]any); ok {
		inv.Parameters = p
	}
	return inv, true
}

// ExecuteCommandLine returns the command line of an execute action, when present.
func (a Action) ExecuteCommandLine() (string, bool) {
	args, ok := a[OpExecute].(map[string]any)
	if !ok {
		return "", false
	}
	return asString(args["command_line"])
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asInt tolerates the numeric types a JSON round trip can produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
