package core

import (
	"encoding/json"
	"strings"

	"github.com/contextflow/contextflow/internal/store"
	"github.com/contextflow/contextflow/internal/utils"
)

type Action string

const (
	ActionCreateTask     Action = "create_task"
	ActionGenerateReport Action = "generate_report"
	ActionUpdateProfile  Action = "update_profile"
	ActionQueryKnowledge Action = "query_knowledge"
)

const (
	DefaultResponseText    = "Analysis complete."
	InvalidFormatText      = "The AI returned an invalid response format."
	ContextTooLargeText    = "The dataset is too large. Truncating context further."
	CommunicationErrorText = "Error communicating with Context Engine."

	// Unparseable output longer than this is shown to the user as-is.
	rawFallbackMinChars = 50
)

// AIResponse is the interpreted model reply. Optional fields are zero when
// the model omitted them or sent something that does not fit the schema.
type AIResponse struct {
	Text           string               `json:"text"`
	DetectedAction Action               `json:"detectedAction,omitempty"`
	ActionData     ActionData           `json:"actionData,omitempty"`
	SourceUsed     string               `json:"sourceUsed,omitempty"`
	Visualization  *store.Visualization `json:"visualization,omitempty"`
}

// ActionData is the free-form object attached to a detected action.
type ActionData map[string]any

func (d ActionData) String(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return strings.TrimSpace(s)
}

// TriggersTask reports whether the action should produce a ScheduledTask.
func (a Action) TriggersTask() bool {
	return a == ActionCreateTask || a == ActionGenerateReport
}

func (a Action) valid() bool {
	switch a {
	case ActionCreateTask, ActionGenerateReport, ActionUpdateProfile, ActionQueryKnowledge:
		return true
	}
	return false
}

// ParseAIResponse interprets raw model output. It never fails: ok is false
// when raw was not JSON, in which case the result carries fallback text.
func ParseAIResponse(raw string) (resp AIResponse, ok bool) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		if utils.CharLen(raw) > rawFallbackMinChars {
			return AIResponse{Text: raw}, false
		}
		return AIResponse{Text: InvalidFormatText}, false
	}

	obj, _ := decoded.(map[string]any)

	resp.Text, _ = obj["text"].(string)
	if resp.Text == "" {
		resp.Text = DefaultResponseText
	}
	if s, isString := obj["detectedAction"].(string); isString && Action(s).valid() {
		resp.DetectedAction = Action(s)
	}
	if m, isObject := obj["actionData"].(map[string]any); isObject {
		resp.ActionData = ActionData(m)
	}
	resp.SourceUsed, _ = obj["sourceUsed"].(string)
	resp.Visualization = parseVisualization(obj["visualization"])

	return resp, true
}

func parseVisualization(v any) *store.Visualization {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	chart, _ := m["type"].(string)
	switch store.ChartType(chart) {
	case store.ChartBar, store.ChartLine, store.ChartPie:
	default:
		return nil
	}

	points, _ := m["data"].([]any)
	data := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if point, ok := p.(map[string]any); ok {
			data = append(data, point)
		}
	}
	if len(data) == 0 {
		return nil
	}

	viz := &store.Visualization{Type: store.ChartType(chart), Data: data}
	viz.Title, _ = m["title"].(string)
	viz.XAxisKey, _ = m["xAxisKey"].(string)
	viz.YAxisKey, _ = m["yAxisKey"].(string)
	if viz.XAxisKey == "" {
		viz.XAxisKey = "name"
	}
	return viz
}
