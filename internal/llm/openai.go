package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/twin/internal/logger"
)

// ChatCompleter is the subset of *openai.Client used by OpenAIClient.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient calls any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	api ChatCompleter
}

// NewOpenAIClient wraps api.
func NewOpenAIClient(api ChatCompleter) *OpenAIClient {
	return &OpenAIClient{api: api}
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, model string, sampling Sampling) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   sampling.MaxTokens,
		Temperature: sampling.Temperature,
		TopP:        sampling.TopP,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		kind := classifyOpenAI(err)
		logger.L.Error("chat completion failed", "model", model, "kind", kind.Error(), "error", err)
		return "", newError(ProviderOpenAI, kind, err)
	}
	if len(resp.Choices) == 0 {
		return "", newError(ProviderOpenAI, ErrProvider, errors.New("completion returned no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAI(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAccessDenied
	}
	return ErrProvider
}
