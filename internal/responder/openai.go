package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIResponder completes turns through the OpenAI chat completions API
// or any OpenAI-compatible endpoint.
type OpenAIResponder struct {
	client openai.Client
	model  string
}

func NewOpenAIResponder(apiKey, baseURL, model string) *OpenAIResponder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIResponder{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (r *OpenAIResponder) Complete(ctx context.Context, req Request) (string, error) {
	res, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserText),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", errors.New("chat completion: empty choices")
	}

	text := strings.TrimSpace(res.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("chat completion: empty message content")
	}
	return text, nil
}
