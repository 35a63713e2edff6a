package generator

import (
	"context"
)

// TextGenerator produces text from a prompt. Calls are slow, rate-limited
// and fallible; workflows localize failures to the item being generated.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}
