package out

import "context"

// ModelGateway sends one prompt to a generative model and returns its raw text.
type ModelGateway interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
