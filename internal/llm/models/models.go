package models

type (
	ModelID       string
	ModelProvider string
)

// Model describes one model offered by a provider, with the pricing and
// context data used for usage bookkeeping.
type Model struct {
	ID                 ModelID       `json:"id"`
	Name               string        `json:"name"`
	Provider           ModelProvider `json:"provider"`
	APIModel           string        `json:"api_model"`
	CostPer1MIn        float64       `json:"cost_per_1m_in"`
	CostPer1MOut       float64       `json:"cost_per_1m_out"`
	CostPer1MInCached  float64       `json:"cost_per_1m_in_cached"`
	CostPer1MOutCached float64       `json:"cost_per_1m_out_cached"`
	ContextWindow      int64         `json:"context_window"`
	DefaultMaxTokens   int64         `json:"default_max_tokens"`
}

const (
	ProviderOpenAI ModelProvider = "openai"

	// ForTests
	ProviderMock ModelProvider = "__mock"
)

const (
	GPT4o     ModelID = "gpt-4o"
	GPT4oMini ModelID = "gpt-4o-mini"
	GPT41     ModelID = "gpt-4.1"
	GPT41Mini ModelID = "gpt-4.1-mini"
)

var OpenAIModels = map[ModelID]Model{
	GPT4o: {
		ID:                GPT4o,
		Name:              "GPT 4o",
		Provider:          ProviderOpenAI,
		APIModel:          "gpt-4o",
		CostPer1MIn:       2.50,
		CostPer1MInCached: 1.25,
		CostPer1MOut:      10.00,
		ContextWindow:     128_000,
		DefaultMaxTokens:  4096,
	},
	GPT4oMini: {
		ID:                GPT4oMini,
		Name:              "GPT 4o mini",
		Provider:          ProviderOpenAI,
		APIModel:          "gpt-4o-mini",
		CostPer1MIn:       0.15,
		CostPer1MInCached: 0.075,
		CostPer1MOut:      0.60,
		ContextWindow:     128_000,
		DefaultMaxTokens:  4096,
	},
	GPT41: {
		ID:                GPT41,
		Name:              "GPT 4.1",
		Provider:          ProviderOpenAI,
		APIModel:          "gpt-4.1",
		CostPer1MIn:       2.00,
		CostPer1MInCached: 0.50,
		CostPer1MOut:      8.00,
		ContextWindow:     1_047_576,
		DefaultMaxTokens:  8192,
	},
	GPT41Mini: {
		ID:                GPT41Mini,
		Name:              "GPT 4.1 mini",
		Provider:          ProviderOpenAI,
		APIModel:          "gpt-4.1-mini",
		CostPer1MIn:       0.40,
		CostPer1MInCached: 0.10,
		CostPer1MOut:      1.60,
		ContextWindow:     1_047_576,
		DefaultMaxTokens:  8192,
	},
}

var SupportedModels = OpenAIModels
