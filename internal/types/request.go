package types

// Request is the per-call description of an outbound provider request.
type Request struct {
	// Provider selects the descriptor: "category.name" or a unique bare name.
	Provider string `json:"provider"`
	// Path is appended verbatim to the resolved base URL.
	Path   string `json:"path"`
	Method string `json:"method,omitempty"`

	// Params values are coerced to strings before reaching the query string.
	Params  map[string]any    `json:"params,omitempty"`
	Body    any               `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// PathVars fill {placeholder} segments of the provider base URL.
	PathVars map[string]string `json:"path_vars,omitempty"`
}
