package service

import (
	"context"
	"errors"

	"address-intelligence/internal/domain/entity"
)

// ContactDirectory resolves a phone number or email to linked wallets
type ContactDirectory interface {
	LookupWalletsByContact(ctx context.Context, contact string) ([]string, error)
}

// CompletionOptions tunes a single LLM call
type CompletionOptions struct {
	JSONMode bool
}

// ErrLLMDisabled is returned by an LLMService that is switched off by
// configuration. Callers treat it as an expected fallback, not a fault.
var ErrLLMDisabled = errors.New("llm disabled")

// LLMService produces text completions. Callers must tolerate failure.
type LLMService interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// ActivityLogger is a fire-and-forget audit sink
type ActivityLogger interface {
	Log(ctx context.Context, event entity.ActivityEvent) error
}

// ResponseHook receives trigger events from the bridge
type ResponseHook interface {
	Fire(ctx context.Context, event entity.TriggerEvent) error
}

// AddressClassifier identifies the chain of an address candidate. It returns
// an error wrapping entity.ErrMalformedAddress for anything it rejects.
type AddressClassifier interface {
	Classify(candidate string) (entity.Chain, error)
}

// HistoryInferrer guesses addresses from earlier interactions
type HistoryInferrer interface {
	InferAddresses(ctx context.Context, msg *entity.Message) ([]string, error)
}

// NoopHistoryInferrer never infers anything
type NoopHistoryInferrer struct{}

// InferAddresses implements HistoryInferrer
func (NoopHistoryInferrer) InferAddresses(context.Context, *entity.Message) ([]string, error) {
	return nil, nil
}
