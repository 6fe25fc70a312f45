// Package llm defines the provider-neutral chat interface the pipeline
// depends on. Concrete providers live under providers/.
package llm

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model string
	// ForceJSON asks the provider to constrain the completion to a JSON
	// object where the backing API supports it.
	ForceJSON   bool
	Temperature *float64
	MaxTokens   int
	Messages    []Message
}

type Response struct {
	Text string
}

type Client interface {
	Chat(ctx context.Context, req Request) (Response, error)
}

// Float is a convenience for Request.Temperature literals.
func Float(v float64) *float64 {
	return &v
}
