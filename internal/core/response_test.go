package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextflow/contextflow/internal/store"
)

func TestParseAIResponse_Full(t *testing.T) {
	raw := `{
		"text": "Sales rose 12%.",
		"detectedAction": "create_task",
		"actionData": {"title": "Follow up", "description": "Call the vendor", "dueDate": "2025-05-01T09:00:00Z"},
		"visualization": {
			"type": "bar",
			"title": "Sales by region",
			"data": [{"name": "EU", "value": 10}, {"name": "US", "value": 14}],
			"xAxisKey": "name",
			"yAxisKey": "value"
		},
		"sourceUsed": "sales.csv"
	}`

	resp, ok := ParseAIResponse(raw)
	require.True(t, ok)
	assert.Equal(t, "Sales rose 12%.", resp.Text)
	assert.Equal(t, ActionCreateTask, resp.DetectedAction)
	assert.Equal(t, "Follow up", resp.ActionData.String("title"))
	assert.Equal(t, "sales.csv", resp.SourceUsed)
	require.NotNil(t, resp.Visualization)
	assert.Equal(t, store.ChartBar, resp.Visualization.Type)
	assert.Equal(t, "Sales by region", resp.Visualization.Title)
	assert.Len(t, resp.Visualization.Data, 2)
	assert.Equal(t, "value", resp.Visualization.YAxisKey)
}

func TestParseAIResponse_Defaults(t *testing.T) {
	for _, raw := range []string{"", "   ", "{}", `{"text": ""}`, `{"text": 42}`, `[1, 2, 3]`, `null`} {
		resp, ok := ParseAIResponse(raw)
		assert.True(t, ok, "raw %q", raw)
		assert.Equal(t, DefaultResponseText, resp.Text, "raw %q", raw)
		assert.Empty(t, resp.DetectedAction)
		assert.Nil(t, resp.ActionData)
		assert.Nil(t, resp.Visualization)
		assert.Empty(t, resp.SourceUsed)
	}
}

func TestParseAIResponse_InvalidJSON(t *testing.T) {
	t.Run("long raw text is kept", func(t *testing.T) {
		raw := "Here is your answer, although I forgot to format it as JSON this time."
		resp, ok := ParseAIResponse(raw)
		assert.False(t, ok)
		assert.Equal(t, raw, resp.Text)
	})

	t.Run("short raw text is replaced", func(t *testing.T) {
		resp, ok := ParseAIResponse("{oops")
		assert.False(t, ok)
		assert.Equal(t, InvalidFormatText, resp.Text)
	})

	t.Run("exactly fifty characters is replaced", func(t *testing.T) {
		resp, _ := ParseAIResponse(strings.Repeat("x", 50))
		assert.Equal(t, InvalidFormatText, resp.Text)
	})
}

func TestParseAIResponse_DropsMalformedFields(t *testing.T) {
	raw := `{
		"text": "ok",
		"detectedAction": "launch_rockets",
		"actionData": "not an object",
		"sourceUsed": ["a.csv"],
		"visualization": {"type": "radar", "data": [{"name": "a", "value": 1}]}
	}`
	resp, ok := ParseAIResponse(raw)
	require.True(t, ok)
	assert.Equal(t, "ok", resp.Text)
	assert.Empty(t, resp.DetectedAction)
	assert.Nil(t, resp.ActionData)
	assert.Empty(t, resp.SourceUsed)
	assert.Nil(t, resp.Visualization)
}

func TestParseAIResponse_Visualization(t *testing.T) {
	t.Run("empty data is dropped", func(t *testing.T) {
		resp, _ := ParseAIResponse(`{"text": "t", "visualization": {"type": "pie", "data": []}}`)
		assert.Nil(t, resp.Visualization)
	})

	t.Run("non-object points are skipped and x axis defaults", func(t *testing.T) {
		resp, _ := ParseAIResponse(`{"text": "t", "visualization": {"type": "line", "data": [1, {"name": "a", "value": 2}]}}`)
		require.NotNil(t, resp.Visualization)
		assert.Len(t, resp.Visualization.Data, 1)
		assert.Equal(t, "name", resp.Visualization.XAxisKey)
	})
}

func TestAction_TriggersTask(t *testing.T) {
	assert.True(t, ActionCreateTask.TriggersTask())
	assert.True(t, ActionGenerateReport.TriggersTask())
	assert.False(t, ActionUpdateProfile.TriggersTask())
	assert.False(t, Action("").TriggersTask())
}
