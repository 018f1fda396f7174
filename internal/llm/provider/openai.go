package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/evalscribe/evalscribe/internal/llm/models"
)

type openaiClient struct {
	client  openai.Client
	options providerClientOptions
}

func newOpenAIClient(opts providerClientOptions) *openaiClient {
	clientOpts := []option.RequestOption{}
	if opts.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.apiKey))
	}
	if opts.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.baseURL))
	}
	return &openaiClient{
		client:  openai.NewClient(clientOpts...),
		options: opts,
	}
}

func (c *openaiClient) Model() models.Model {
	return c.options.model
}

func (c *openaiClient) MaxTokens() int64 {
	if c.options.maxTokens > 0 {
		return c.options.maxTokens
	}
	return c.options.model.DefaultMaxTokens
}

func (c *openaiClient) Generate(ctx context.Context, req Request) <-chan Event {
	eventChan := make(chan Event)

	go func() {
		defer close(eventChan)

		params := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(c.options.model.APIModel),
			Messages:    c.buildMessages(req),
			MaxTokens:   openai.Int(c.MaxTokens()),
			Temperature: openai.Float(req.Temperature),
			StreamOptions: openai.ChatCompletionStreamOptionsParam{
				IncludeUsage: openai.Bool(true),
			},
		}

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		acc := openai.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if ctx.Err() != nil {
				break
			}

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				select {
				case eventChan <- Event{
					Type:    EventContentDelta,
					Content: chunk.Choices[0].Delta.Content,
				}:
				case <-ctx.Done():
				}
			}
		}

		// Terminal sends also select on ctx.Done: a consumer that gave
		// up after cancellation is not receiving anymore, and a bare
		// send would park this goroutine and its HTTP stream forever.
		if ctx.Err() != nil {
			select {
			case eventChan <- Event{Type: EventError, Error: ctx.Err()}:
			case <-ctx.Done():
			}
			return
		}

		if err := stream.Err(); err != nil {
			select {
			case eventChan <- Event{Type: EventError, Error: c.classifyError(err)}:
			case <-ctx.Done():
			}
			return
		}

		content := ""
		if len(acc.Choices) > 0 {
			content = acc.Choices[0].Message.Content
		}

		select {
		case eventChan <- Event{
			Type: EventComplete,
			Response: &Response{
				Content: content,
				Usage: TokenUsage{
					InputTokens:     acc.Usage.PromptTokens,
					OutputTokens:    acc.Usage.CompletionTokens,
					CacheReadTokens: acc.Usage.PromptTokensDetails.CachedTokens,
				},
			},
		}:
		case <-ctx.Done():
		}
	}()

	return eventChan
}

func (c *openaiClient) buildMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if c.options.systemMessage != "" {
		messages = append(messages, openai.SystemMessage(c.options.systemMessage))
	}

	prompt := req.Prompt
	if len(req.ResponseSchema) > 0 {
		prompt = prompt + "\n\n" + renderResponseSchema(req.ResponseSchema)
	}
	messages = append(messages, openai.UserMessage(prompt))
	return messages
}

// renderResponseSchema turns the field map into an explicit JSON-output
// instruction. Keys are sorted so the same request always produces the
// same prompt text.
func renderResponseSchema(schema map[string]string) string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("Respond with a single JSON object containing exactly these fields:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %q: %s\n", k, schema[k])
	}
	sb.WriteString("Output only the JSON object, no surrounding text.")
	return sb.String()
}

func (c *openaiClient) classifyError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 429 {
			return &RateLimitError{Provider: "openai", Message: apierr.Message}
		}
		retryable := apierr.StatusCode >= 500 || apierr.StatusCode == 408
		if !retryable {
			slog.Debug("Non-retryable provider error", "status", apierr.StatusCode)
		}
		return &ProviderError{
			Provider:   "openai",
			StatusCode: apierr.StatusCode,
			Message:    apierr.Message,
			Retryable:  retryable,
		}
	}
	// Transport-level failures (connection reset, DNS) are worth a retry.
	return &ProviderError{Provider: "openai", Message: err.Error(), Retryable: true}
}
