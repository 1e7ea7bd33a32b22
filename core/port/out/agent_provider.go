package out

import "context"

// CompletionProvider is the external text-completion service consulted for
// classification and extraction. Implementations must honor the context
// deadline and return structured JSON text for JSON-mode prompts.
//
// The call has no shared state and is safe to invoke from multiple
// pipeline workers concurrently.
type CompletionProvider interface {
	// CompleteJSON sends a system+user prompt pair and returns the raw
	// model output, which callers parse as a single JSON object.
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
