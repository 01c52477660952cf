package mcp

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxCompletionValues caps completion/complete responses: the protocol asks
// servers to return at most 100 suggestions and say whether more exist.
const maxCompletionValues = 100

// completionTimeout bounds how long a single completion/complete call waits
// on a registered CompletionFunc. Completion is meant to back interactive
// autocomplete; a slow provider should time out rather than stall the client.
const completionTimeout = 5 * time.Second

// completeWithTimeout runs fn under completionTimeout, using an errgroup so
// the provider's context is cancelled the moment the deadline or the parent
// ctx fires, not just after fn eventually notices.
func completeWithTimeout(ctx context.Context, fn func(ctx context.Context) (completion, error)) (completion, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	var result completion
	g.Go(func() error {
		r, err := fn(gctx)
		result = r
		return err
	})
	if err := g.Wait(); err != nil {
		if gctx.Err() != nil && ctx.Err() != nil {
			return completion{}, &InternalError{Message: "completion provider timed out", Cause: ctx.Err()}
		}
		return completion{}, err
	}
	return result, nil
}

// completeAgainstPrompt resolves a ref/prompt completion request by looking
// up the prompt's registered completion callback for the named argument.
func completeAgainstPrompt(ctx context.Context, reg *registry, ref completionReference, arg completionArgument) (completion, error) {
	p, ok := reg.prompt(ref.Name)
	if !ok {
		return completion{}, &PromptNotFoundError{Name: ref.Name}
	}
	fn, ok := p.completions[arg.Name]
	if !ok {
		return completion{}, nil
	}
	values, err := fn(ctx, arg.Value)
	if err != nil {
		return completion{}, err
	}
	return capCompletion(values), nil
}

// completeAgainstResource resolves a ref/resource completion request.
//
// NOTE: matching is exact string equality between the template's pattern and
// ref.uri, not uritemplate.Match against a concrete URI. ref.uri here names
// the template itself the client is filling in, not a URI to route; see
// DESIGN.md for the reasoning.
func completeAgainstResource(ctx context.Context, reg *registry, ref completionReference, arg completionArgument) (completion, error) {
	for _, tmpl := range reg.allResourceTemplates() {
		if tmpl.compiled == nil || tmpl.compiled.String() != ref.URI {
			continue
		}
		fn, ok := tmpl.completions[arg.Name]
		if !ok {
			return completion{}, nil
		}
		values, err := fn(ctx, arg.Value)
		if err != nil {
			return completion{}, err
		}
		return capCompletion(values), nil
	}
	return completion{}, &ResourceNotFoundError{URI: ref.URI}
}

func capCompletion(values []string) completion {
	total := len(values)
	hasMore := total > maxCompletionValues
	if hasMore {
		values = values[:maxCompletionValues]
	}
	return completion{
		Values:  values,
		Total:   total,
		HasMore: hasMore,
	}
}
