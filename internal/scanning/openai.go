package scanning

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI implements the Scanner interface against any OpenAI-compatible
// chat completions API, Groq included.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a new OpenAI-compatible Scanner instance
func NewOpenAI(apiKey, baseURL, modelName string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  modelName,
	}, nil
}

// Scan sends the prompt and the image reference as one user message
func (o *OpenAI) Scan(ctx context.Context, prompt string, img Image) (map[string]any, error) {
	imageURL := img.URL
	if imageURL == "" {
		if len(img.Data) == 0 {
			return nil, errors.New("image has neither data nor url")
		}
		imageURL = img.DataURI()
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               o.model,
		Temperature:         Temperature,
		MaxCompletionTokens: MaxOutputTokens,
		Stream:              false,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: imageURL,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling chat completions: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, &MalformedResponseError{Err: errors.New("no choices in response")}
	}

	return parseJSONObject(resp.Choices[0].Message.Content)
}

// Close is a no-op; the HTTP client holds no resources of its own
func (o *OpenAI) Close() error {
	return nil
}
