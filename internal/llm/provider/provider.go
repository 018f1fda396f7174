package provider

import (
	"context"
	"fmt"

	"github.com/evalscribe/evalscribe/internal/llm/models"
)

type EventType string

const (
	EventContentDelta EventType = "content_delta"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// TokenUsage reports what one call consumed.
type TokenUsage struct {
	InputTokens     int64
	OutputTokens    int64
	CacheReadTokens int64
}

// Request describes a single generation call. ResponseSchema names the exact
// fields the model must return; it is rendered into the prompt and the raw
// text response is parsed back by the caller.
type Request struct {
	Prompt         string
	ResponseSchema map[string]string
	Temperature    float64
}

// Response is the final accumulated result of a call.
type Response struct {
	Content string
	Usage   TokenUsage
}

// Event is one element of the lazy, finite chunk sequence a call produces.
// The channel closes after exactly one Complete or Error event.
type Event struct {
	Type     EventType
	Content  string
	Response *Response
	Error    error
}

// Provider is the opaque asynchronous model-call collaborator. Cancellation
// is the context: implementations abort the in-flight network call when it
// is done, best effort.
type Provider interface {
	Model() models.Model
	MaxTokens() int64
	Generate(ctx context.Context, req Request) <-chan Event
}

type providerClientOptions struct {
	apiKey        string
	baseURL       string
	model         models.Model
	maxTokens     int64
	systemMessage string
}

type ProviderClientOption func(*providerClientOptions)

func WithAPIKey(apiKey string) ProviderClientOption {
	return func(options *providerClientOptions) {
		options.apiKey = apiKey
	}
}

func WithBaseURL(baseURL string) ProviderClientOption {
	return func(options *providerClientOptions) {
		options.baseURL = baseURL
	}
}

func WithModel(model models.Model) ProviderClientOption {
	return func(options *providerClientOptions) {
		options.model = model
	}
}

func WithMaxTokens(maxTokens int64) ProviderClientOption {
	return func(options *providerClientOptions) {
		options.maxTokens = maxTokens
	}
}

func WithSystemMessage(systemMessage string) ProviderClientOption {
	return func(options *providerClientOptions) {
		options.systemMessage = systemMessage
	}
}

func NewProvider(providerName models.ModelProvider, opts ...ProviderClientOption) (Provider, error) {
	clientOptions := providerClientOptions{}
	for _, o := range opts {
		o(&clientOptions)
	}
	switch providerName {
	case models.ProviderOpenAI:
		return newOpenAIClient(clientOptions), nil
	}
	return nil, fmt.Errorf("provider not supported: %s", providerName)
}
