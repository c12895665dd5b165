package types

// Tool declares a capability offered to the agent. Only function tools are
// currently defined; the shape follows OpenAI-style tool declarations.
type Tool struct {
	Type     string          `json:"type"`
	Function *FunctionSchema `json:"function,omitempty"`
}

// FunctionSchema describes a callable function: name, human description,
// and a JSON Schema for its parameters.
type FunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// NewFunctionTool builds a function tool declaration.
func NewFunctionTool(name, description string, parameters map[string]any) Tool {
	return Tool{
		Type: "function",
		Function: &FunctionSchema{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
