package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/contextflow/contextflow/internal/utils"
)

const (
	MaxHistoryTurns = 10

	defaultTemperature = 0.1
)

// Substrings of provider errors that mean the prompt was too large.
var contextTooLargeMarkers = []string{
	"token count exceeds",
	"exceeds the maximum number of tokens",
	"context_length_exceeded",
	"maximum context length",
}

const systemInstructionTemplate = `
You are ContextFlow AI Assistant, a high-performance RAG (Retrieval-Augmented Generation) engine.

CORE MISSION:
You possess a PRIVATE KNOWLEDGE BASE (found in the CONTEXT section).
Your priority is to answer using information from these files.

CRITICAL RULES:
1. If the information is in the PRIVATE DATA section, you MUST use it.
2. If you use information from a file, you MUST set "sourceUsed" to the filename.
3. If the user asks about data not in the files, use your general knowledge but clarify it's not from their private data.
4. Always return valid JSON matching this structure:
   {
     "text": "Your markdown response here",
     "detectedAction": "create_task" | "generate_report" | null,
     "actionData": { "title": "...", "description": "...", "dueDate": "ISO timestamp" },
     "visualization": {
        "type": "bar" | "line" | "pie",
        "title": "Clear Chart Title",
        "data": [{"name": "A", "value": 10}, ...],
        "xAxisKey": "name",
        "yAxisKey": "value"
     },
     "sourceUsed": "filename.csv"
   }

DATA VISUALIZATION:
- If the user asks for a summary of a CSV or numerical data, you MUST include a "visualization" object.
- Keep chart data simple (max 10-15 points).
- For "pie" charts, ensure values are percentages or parts of a whole.

AUTOMATION:
- detectedAction: "generate_report" if user wants a summary/table.
- detectedAction: "create_task" if user wants to schedule or remember something.

CURRENT CONTEXT (USER DATA & FILES):
%s
`

// SystemInstruction embeds the assembled context into the fixed instruction template.
func SystemInstruction(assembledContext string) string {
	return fmt.Sprintf(systemInstructionTemplate, assembledContext)
}

// QueryClient sends one classify-and-respond request per user turn and
// always hands back a usable AIResponse.
type QueryClient struct {
	model       Model
	limiter     *rate.Limiter
	temperature float32
	logger      *zap.Logger
}

type QueryOption func(*QueryClient)

// WithRequestsPerMinute paces outbound model calls; zero or less disables pacing.
func WithRequestsPerMinute(n int) QueryOption {
	return func(c *QueryClient) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

func WithTemperature(t float32) QueryOption {
	return func(c *QueryClient) { c.temperature = t }
}

func NewQueryClient(model Model, logger *zap.Logger, opts ...QueryOption) *QueryClient {
	c := &QueryClient{model: model, temperature: defaultTemperature, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query asks the model about prompt, grounded on assembledContext and the
// most recent history turns (oldest first). Failures come back as
// explanatory text, never as an error.
func (c *QueryClient) Query(ctx context.Context, prompt, assembledContext string, history []Turn) AIResponse {
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}

	turns := make([]Turn, 0, len(history)+1)
	for _, h := range history {
		role := TurnModel
		if h.Role == TurnUser {
			role = TurnUser
		}
		turns = append(turns, Turn{Role: role, Content: h.Content})
	}
	turns = append(turns, Turn{Role: TurnUser, Content: prompt})

	req := ModelRequest{
		SystemInstruction: SystemInstruction(assembledContext),
		Turns:             turns,
		ResponseMIMEType:  jsonMIMEType,
		Temperature:       c.temperature,
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Warn("Model call pacing aborted", zap.Error(err))
			return AIResponse{Text: CommunicationErrorText}
		}
	}

	start := time.Now()
	raw, err := c.model.Generate(ctx, req)
	if err != nil {
		c.logger.Error("AI query failed",
			zap.String("model", c.model.Name()),
			zap.Int("context_chars", utils.CharLen(assembledContext)),
			zap.Error(err))
		if isContextTooLarge(err) {
			return AIResponse{Text: ContextTooLargeText}
		}
		return AIResponse{Text: CommunicationErrorText}
	}

	resp, ok := ParseAIResponse(raw)
	if !ok {
		c.logger.Warn("Model returned non-JSON output", zap.String("raw", utils.Ellipsize(raw, 500)))
	}
	c.logger.Debug("AI query complete",
		zap.String("model", c.model.Name()),
		zap.Int("turns", len(turns)),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("action", string(resp.DetectedAction)))
	return resp
}

func isContextTooLarge(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range contextTooLargeMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
