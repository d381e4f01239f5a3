// Package providers maps survey provider postbacks onto reward ledger operations.
package providers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnverified      = errors.New("postback not verified")
	ErrInvalidPayload  = errors.New("invalid postback payload")
)

// Provider tags a supported survey provider.
type Provider string

const (
	Inbrain     Provider = "inbrain"
	CPXResearch Provider = "cpx_research"
)

// ParseProvider validates a provider tag.
func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case Inbrain:
		return Inbrain, nil
	case CPXResearch:
		return CPXResearch, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
	}
}

// String returns the tag.
func (provider Provider) String() string {
	return string(provider)
}

// EventKind is what a postback asks the ledger to do.
type EventKind string

const (
	EventCompletion       EventKind = "completion"
	EventDisqualification EventKind = "disqualification"
	EventReversal         EventKind = "reversal"
)

// Event is a provider-neutral postback.
type Event struct {
	Provider             Provider
	Kind                 EventKind
	UserID               string
	OfferID              string
	ExternalCompletionID string
	Points               int64
	Reason               string
	Metadata             map[string]string
}

// Postback is the raw inbound request.
type Postback struct {
	Secret string
	Query  url.Values
	Body   []byte
}

// Adapter verifies and decodes one provider's postbacks.
type Adapter interface {
	Provider() Provider
	VerifyEvent(postback Postback) error
	MapPayload(postback Postback) (Event, error)
}

// sharedSecret accepts a postback when its secret matches the configured one.
// An empty configured secret rejects everything.
type sharedSecret struct {
	secret []byte
}

func (verifier sharedSecret) VerifyEvent(postback Postback) error {
	if len(verifier.secret) == 0 {
		return fmt.Errorf("%w: postback secret not configured", ErrUnverified)
	}
	if subtle.ConstantTimeCompare(verifier.secret, []byte(postback.Secret)) != 1 {
		return fmt.Errorf("%w: secret mismatch", ErrUnverified)
	}
	return nil
}

// Registry resolves adapters by provider tag.
type Registry struct {
	adapters map[Provider]Adapter
}

// NewRegistry indexes adapters by their provider. Later adapters replace earlier ones.
func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[Provider]Adapter, len(adapters))}
	for _, adapter := range adapters {
		if adapter != nil {
			registry.adapters[adapter.Provider()] = adapter
		}
	}
	return registry
}

// NewDefaultRegistry registers the Inbrain and CPX Research adapters with one shared secret.
func NewDefaultRegistry(secret string) *Registry {
	return NewRegistry(NewInbrainAdapter(secret), NewCPXAdapter(secret))
}

// Lookup returns the adapter for raw.
func (registry *Registry) Lookup(raw string) (Adapter, error) {
	provider, err := ParseProvider(raw)
	if err != nil {
		return nil, err
	}
	adapter, ok := registry.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
	}
	return adapter, nil
}

// Providers lists registered providers in lexical order.
func (registry *Registry) Providers() []Provider {
	providers := make([]Provider, 0, len(registry.adapters))
	for provider := range registry.adapters {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(left, right int) bool { return providers[left] < providers[right] })
	return providers
}

func requireField(name string, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidPayload, name)
	}
	return trimmed, nil
}
