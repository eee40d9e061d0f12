// Package codegen turns a natural-language request plus a description of the
// working table into an executable JavaScript fragment, using a language
// model behind an OpenAI-compatible chat completions API.
package codegen

import (
	"context"
	"strings"
)

// Request is the generation context for one command. The samples and stats
// are preformatted text blocks; they are built fresh per request and never
// stored.
type Request struct {
	Query      string   `json:"query"`
	Columns    []string `json:"columns"`
	RowCount   int      `json:"row_count"`
	SampleHead string   `json:"sample_head"`
	SampleTail string   `json:"sample_tail"`
	Stats      string   `json:"stats"`
}

type Result struct {
	Code     string `json:"code"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// StripFences removes residual markdown code-fence markup. The prompt
// forbids fences, but models emit them anyway often enough that callers
// always strip.
func StripFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```javascript")
	trimmed = strings.TrimPrefix(trimmed, "```js")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
