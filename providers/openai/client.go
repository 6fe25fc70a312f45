// Package openai adapts the OpenAI chat completions API (and any
// OpenAI-compatible endpoint) to the llm.Client interface.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaiapi "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/quailyquaily/vendorwatch/llm"
)

type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	api          openaiapi.Client
	defaultModel string
}

func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	return &Client{
		api:          openaiapi.NewClient(reqOpts...),
		defaultModel: strings.TrimSpace(opts.Model),
	}, nil
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	if c == nil {
		return llm.Response{}, fmt.Errorf("openai client is not initialized")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return llm.Response{}, fmt.Errorf("model is required")
	}

	messages := make([]openaiapi.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openaiapi.SystemMessage(msg.Content))
		case "assistant":
			messages = append(messages, openaiapi.AssistantMessage(msg.Content))
		case "user":
			messages = append(messages, openaiapi.UserMessage(msg.Content))
		default:
			return llm.Response{}, fmt.Errorf("unsupported message role: %q", msg.Role)
		}
	}

	params := openaiapi.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openaiapi.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaiapi.Int(int64(req.MaxTokens))
	}
	if req.ForceJSON {
		params.ResponseFormat = openaiapi.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("chat completion returned no choices")
	}
	return llm.Response{Text: resp.Choices[0].Message.Content}, nil
}
