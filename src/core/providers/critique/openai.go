package critique

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/core/utils"
)

// openaiBackend drives openai-compatible vision chat endpoints, including
// locally hosted models that expose the same API.
type openaiBackend struct {
	client *openai.Client
	model  string
	logger *utils.TaggedLogger
}

func init() {
	Register("openai", func(cfg configs.CritiqueConfig, logger *utils.Logger) (backend, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai critique backend requires an API key")
		}

		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}

		return &openaiBackend{
			client: openai.NewClientWithConfig(clientConfig),
			model:  cfg.ModelName,
			logger: logger.WithTag("openai"),
		}, nil
	})
}

func (b *openaiBackend) invoke(ctx context.Context, prompt, imageB64, imageFormat string) (string, error) {
	var message openai.ChatCompletionMessage
	if imageB64 == "" {
		message = openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}
	} else {
		message = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: prompt,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: fmt.Sprintf("data:image/%s;base64,%s", imageFormat, imageB64),
					},
				},
			},
		}
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: []openai.ChatCompletionMessage{message},
	})
	if err != nil {
		return "", &TransportError{Err: err}
	}

	if len(resp.Choices) == 0 {
		b.logger.Warn("chat completion returned no choices")
		return "", ErrEmptyResponse
	}
	if resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}
