package commands

import (
	"context"
	"strings"

	"github.com/dvloznov/ledger-assistant/internal/domain"
)

// Call is a function call selected by a language model.
type Call struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Resolution is what a Resolver makes of a prompt: either a call to dispatch
// or a plain-text reply.
type Resolution struct {
	Call *Call  `json:"call,omitempty"`
	Text string `json:"text,omitempty"`
}

// Resolver maps a natural-language prompt to a command.
type Resolver interface {
	Resolve(ctx context.Context, prompt string) (*Resolution, error)
}

// Assistant answers natural-language prompts by resolving them to one
// command and dispatching it.
type Assistant struct {
	resolver   Resolver
	dispatcher *Dispatcher
}

// NewAssistant creates an assistant.
func NewAssistant(resolver Resolver, dispatcher *Dispatcher) *Assistant {
	return &Assistant{resolver: resolver, dispatcher: dispatcher}
}

// Ask resolves prompt and dispatches the selected call. When the model
// answers in plain text, the text is the result.
func (a *Assistant) Ask(ctx context.Context, prompt string) Envelope {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return a.dispatcher.fail("", domain.E(domain.KindValidation, "Ask", "prompt is empty"))
	}

	res, err := a.resolver.Resolve(ctx, prompt)
	if err != nil {
		return a.dispatcher.fail("", err)
	}
	if res.Call == nil {
		return Envelope{Status: StatusSuccess, Result: res.Text}
	}
	return a.dispatcher.Dispatch(ctx, res.Call.Name, res.Call.Args)
}
