package models

// HostCommand is the operator-facing view of a finished (or in-flight)
// agent job. Output is populated only when the job succeeded with a
// textual result.
type HostCommand struct {
	Host        *Host     `json:"host"`
	Status      JobStatus `json:"status"`
	CommandLine string    `json:"command_line,omitempty"`
	Output      string    `json:"output,omitempty"`
}

// RatCommand is the operator-facing view of a rat function call.
// Outputs is populated only when the job succeeded with a map result.
type RatCommand struct {
	Agent      *Agent         `json:"agent"`
	Host       *Host          `json:"host"`
	Status     JobStatus      `json:"status"`
	Function   string         `json:"function"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
}
