package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIClient talks to the OpenAI chat-completion API or any
// API-compatible endpoint (set BaseURL).
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// NewOpenAIClient creates a client for the OpenAI chat-completion API.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(apiCfg),
		model:       model,
		temperature: cfg.Temperature,
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

// Complete sends prompt as the system message and content as the user
// message, returning the first choice's text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt, content string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Provider: c.Name(), Message: "no completion returned"}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// wrapError normalizes go-openai errors into *Error so the retry classifier
// sees the HTTP status.
func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Provider: c.Name(), Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Provider: c.Name(), Status: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return &Error{Provider: c.Name(), Message: err.Error()}
}
