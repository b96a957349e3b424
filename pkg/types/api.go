package types

// ClassifyRequest is the body of POST /v1/classify.
type ClassifyRequest struct {
	// Text to categorise.
	// example: Finish the quarterly report by Friday
	Text string `json:"text" example:"Finish the quarterly report by Friday"`
}

// ClassifyResponse is returned by POST /v1/classify.
type ClassifyResponse struct {
	// example: Work
	Category string `json:"category" example:"Work"`
	// example: ["report","deadline"]
	Tags []string `json:"tags"`
	// Confidence in [0,1]; 0 when the model output could not be parsed.
	// example: 0.85
	Confidence float64 `json:"confidence" example:"0.85"`
	// Backend that served the request: local, cloud or none.
	// example: local
	Provider string `json:"provider" example:"local"`
}

// CompleteRequest is the body of POST /v1/complete.
type CompleteRequest struct {
	// Required prompt text.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Sampling temperature.
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Maximum number of new tokens to generate.
	// example: 256
	MaxTokens int `json:"max_tokens,omitempty" example:"256"`
	// Optional stop sequences.
	Stop []string `json:"stop,omitempty"`
}

// CompleteResponse is returned by POST /v1/complete.
type CompleteResponse struct {
	Content string `json:"content"`
	// example: cloud
	Provider string `json:"provider" example:"cloud"`
}

// MutationsRequest is the body of POST /v1/ideas/mutations.
type MutationsRequest struct {
	// The idea to vary, usually markdown.
	Idea string `json:"idea"`
	// Number of mutations wanted (default 5, max 10).
	// example: 3
	Count int `json:"count,omitempty" example:"3"`
	// Optional angle to push the variations towards.
	// example: pricing
	Focus string `json:"focus,omitempty" example:"pricing"`
}

// Mutation is one generated variation.
type Mutation struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Differences []string `json:"differences"`
}

// MutationsResponse is returned by POST /v1/ideas/mutations.
type MutationsResponse struct {
	Mutations []Mutation `json:"mutations"`
	Provider  string     `json:"provider"`
}

// IdeaRequest is the body of POST /v1/ideas/expand and /v1/ideas/reorganize.
type IdeaRequest struct {
	Idea string `json:"idea"`
	// Optional extra instructions for the rewrite.
	Focus string `json:"focus,omitempty"`
}

// Heading is a markdown heading found in a rewritten idea.
type Heading struct {
	// example: 2
	Level int    `json:"level" example:"2"`
	Title string `json:"title"`
}

// SectionDiff compares the headings of the input and output documents.
type SectionDiff struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Reordered []string `json:"reordered"`
}

// IdeaResponse is returned by the idea rewrite endpoints.
type IdeaResponse struct {
	// Rewritten markdown.
	Text     string      `json:"text"`
	Provider string      `json:"provider"`
	Headings []Heading   `json:"headings"`
	Outline  string      `json:"outline"`
	Diff     SectionDiff `json:"diff"`
}

// WarmupResponse is returned by POST /v1/warmup.
type WarmupResponse struct {
	// True when at least one backend is ready.
	Ready bool `json:"ready"`
	// Local server state after warmup.
	// example: ready
	LocalState string `json:"local_state" example:"ready"`
	// Error from the local backend when nothing became ready.
	Error string `json:"error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Error taxonomy kind: configuration, process_startup, timeout, network,
	// repair, empty_response or bad_request.
	// example: bad_request
	Kind string `json:"kind,omitempty" example:"bad_request"`
}
