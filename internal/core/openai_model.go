package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIModel talks to any OpenAI-compatible chat completions endpoint.
type OpenAIModel struct {
	client    *openai.Client
	modelName string
}

func NewOpenAIModel(apiKey, baseURL, modelName string) *OpenAIModel {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = defaultOpenAIModelName
	}
	return &OpenAIModel{
		client:    openai.NewClientWithConfig(clientConfig),
		modelName: modelName,
	}
}

func (m *OpenAIModel) Name() string { return "openai/" + m.modelName }

func (m *OpenAIModel) Close() error { return nil }

func (m *OpenAIModel) Generate(ctx context.Context, req ModelRequest) (string, error) {
	if len(req.Turns) == 0 {
		return "", errors.New("prompt history is empty for chat completion")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Turns)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, t := range req.Turns {
		role := openai.ChatMessageRoleAssistant
		if t.Role == TurnUser {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	completionReq := openai.ChatCompletionRequest{
		Model:       m.modelName,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.ResponseMIMEType == jsonMIMEType {
		completionReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := m.client.CreateChatCompletion(ctx, completionReq)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
