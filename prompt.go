package mcp

import (
	"context"
)

// PromptHandlerFunc defines a function to serve a prompts/get request.
type PromptHandlerFunc func(c PromptContext) error

// CompletionFunc suggests values for one prompt argument given what the
// client has typed so far.
type CompletionFunc func(ctx context.Context, value string) ([]string, error)

// PromptContext is the context handed to a PromptHandlerFunc.
type PromptContext interface {
	Context
	// PromptName returns the name of the prompt being rendered.
	PromptName() string
	// Arguments returns the arguments supplied by the client.
	Arguments() map[string]any
	// System appends a system-role message to the rendered prompt.
	System(text string) error
	// User appends a user-role message to the rendered prompt.
	User(text string) error
	// Assistant appends an assistant-role message to the rendered prompt.
	Assistant(text string) error
	// Describe sets the human-readable description returned alongside the messages.
	Describe(description string)
}

var _ PromptContext = (*promptContext)(nil)

type promptContext struct {
	_context
	promptName  string
	args        map[string]any
	description string
	messages    *[]promptMessage
}

func (c *promptContext) PromptName() string {
	return c.promptName
}

func (c *promptContext) Arguments() map[string]any {
	return c.args
}

func (c *promptContext) Describe(description string) {
	c.description = description
}

func (c *promptContext) appendMessage(role Role, text string) error {
	*c.messages = append(*c.messages, promptMessage{
		Role: role,
		Content: textContentOnly{
			Type: "text",
			Text: text,
		},
	})
	return nil
}

func (c *promptContext) System(text string) error    { return c.appendMessage(RoleSystem, text) }
func (c *promptContext) User(text string) error       { return c.appendMessage(RoleUser, text) }
func (c *promptContext) Assistant(text string) error  { return c.appendMessage(RoleAssistant, text) }

func (c *promptContext) reset() {
	c._context.reset()
	c.promptName = ""
	c.args = nil
	c.description = ""
	c.messages = nil
}

func newPromptContext(jsonUnmarshalFunc JSONUnmarshalFunc, jsonMarshalFunc JSONMarshalFunc) *promptContext {
	return &promptContext{
		_context: _context{
			jsonUnmarshalFunc: jsonUnmarshalFunc,
			jsonMarshalFunc:   jsonMarshalFunc,
		},
	}
}

type promptOptions struct {
	description string
	arguments   []PromptArgument
	completable map[string]bool
	completions map[string]CompletionFunc
}

// PromptOption configures a Prompt registration.
type PromptOption func(*promptOptions)

// PromptWithDescription sets the prompt's human-readable description.
func PromptWithDescription(description string) PromptOption {
	return func(o *promptOptions) {
		o.description = description
	}
}

// PromptWithArguments declares the prompt's accepted arguments.
func PromptWithArguments(args ...PromptArgument) PromptOption {
	return func(o *promptOptions) {
		o.arguments = append(o.arguments, args...)
	}
}

// PromptWithArgumentsFrom derives the prompt's argument list by reflecting a
// Go struct the same way Tool derives its input schema: each top-level field
// becomes a PromptArgument, named and described from its json schema tags,
// required following the schema's required list. Fields tagged x-completable
// are the only ones PromptWithArgumentCompletion may register a callback for.
func PromptWithArgumentsFrom(req any) PromptOption {
	return func(o *promptOptions) {
		schema := reflectSchema(req)
		o.arguments = append(o.arguments, promptArguments(schema)...)
		o.completable = completableFields(schema)
	}
}

// PromptWithArgumentCompletion registers a completion callback for one
// argument, consulted by completion/complete when ref.type == "ref/prompt".
// If the prompt's arguments were derived with PromptWithArgumentsFrom,
// argumentName must name a field tagged x-completable.
func PromptWithArgumentCompletion(argumentName string, fn CompletionFunc) PromptOption {
	return func(o *promptOptions) {
		if o.completions == nil {
			o.completions = make(map[string]CompletionFunc)
		}
		o.completions[argumentName] = fn
	}
}
