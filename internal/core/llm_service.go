package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/contextflow/contextflow/internal/config"
)

const (
	defaultGeminiModelName = "gemini-2.5-pro"
	defaultOpenAIModelName = "gpt-4o-mini"

	TurnUser  = "user"
	TurnModel = "model"

	jsonMIMEType = "application/json"
)

// Turn is one prior exchange in the conversation sent to the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelRequest is a single non-streaming call. The last turn is the new
// user prompt.
type ModelRequest struct {
	SystemInstruction string
	Turns             []Turn
	ResponseMIMEType  string
	Temperature       float32
}

// Model is a hosted LLM that returns raw response text.
type Model interface {
	Generate(ctx context.Context, req ModelRequest) (string, error)
	Name() string
	Close() error
}

// NewModel builds the provider selected in cfg.
func NewModel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Model, error) {
	if err := cfg.ValidateModel(); err != nil {
		return nil, err
	}
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel), nil
	default:
		return NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.ChatModel, logger)
	}
}

type GeminiModel struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

func NewGeminiModel(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if modelName == "" {
		modelName = defaultGeminiModelName
	}
	return &GeminiModel{client: client, modelName: modelName, logger: logger}, nil
}

func (m *GeminiModel) Name() string { return "gemini/" + m.modelName }

func (m *GeminiModel) Close() error {
	if m.client == nil {
		return nil
	}
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("failed to close GenAI client: %w", err)
	}
	return nil
}

func (m *GeminiModel) Generate(ctx context.Context, req ModelRequest) (string, error) {
	if len(req.Turns) == 0 {
		return "", errors.New("prompt history is empty for chat completion")
	}
	last := req.Turns[len(req.Turns)-1]
	if last.Role != TurnUser {
		return "", errors.New("last message in history is not from 'user', cannot proceed with chat completion")
	}

	model := m.client.GenerativeModel(m.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemInstruction)},
	}
	model.ResponseMIMEType = req.ResponseMIMEType
	model.SetTemperature(req.Temperature)

	chatSession := model.StartChat()
	chatSession.History = geminiHistory(req.Turns[:len(req.Turns)-1])

	resp, err := chatSession.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		m.logger.Warn("Gemini response was empty or had no valid candidates")
		return "", nil
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			m.logger.Debug("Gemini response part was not text", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}
	return responseText.String(), nil
}

func geminiHistory(turns []Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		history = append(history, &genai.Content{
			Role:  t.Role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return history
}
