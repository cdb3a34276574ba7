package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Message tests ---

func TestMessageText(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "plain content",
			msg:  Message{Role: RoleUser, Content: "hello"},
			want: "hello",
		},
		{
			name: "text parts joined",
			msg: Message{Role: RoleUser, Parts: []ContentPart{
				{Type: PartText, Text: "look at this"},
				{Type: PartImage, URL: "https://example.com/a.png"},
				{Type: PartText, Text: "and this"},
			}},
			want: "look at this\nand this",
		},
		{
			name: "content wins over parts",
			msg:  Message{Content: "direct", Parts: []ContentPart{{Type: PartText, Text: "ignored"}}},
			want: "direct",
		},
		{
			name: "empty",
			msg:  Message{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.Text())
		})
	}
}

func TestMessageEnsureMetadata(t *testing.T) {
	var m Message
	md := m.EnsureMetadata()
	require.NotNil(t, md)
	md.ResponseID = "r1"
	assert.Equal(t, "r1", m.Metadata.ResponseID)
	assert.Same(t, md, m.EnsureMetadata())
}

func TestMessageClone(t *testing.T) {
	orig := Message{
		ID:    "m1",
		Parts: []ContentPart{{Type: PartText, Text: "hi"}},
		Metadata: &MessageMetadata{
			Files:           []FileRef{{Name: "a.pdf"}},
			ProcessingSteps: []ProcessingStep{{Name: "search"}},
			Interactive:     json.RawMessage(`{"a":1}`),
			Feedback:        &Feedback{Kind: FeedbackLiked},
		},
	}
	c := orig.Clone()
	require.Equal(t, orig, c)

	c.Parts[0].Text = "changed"
	c.Metadata.Files[0].Name = "b.pdf"
	c.Metadata.ProcessingSteps[0].Name = "answer"
	c.Metadata.Interactive[2] = 'b'
	c.Metadata.Feedback.Kind = FeedbackDisliked
	c.Metadata.ResponseID = "r2"

	assert.Equal(t, "hi", orig.Parts[0].Text)
	assert.Equal(t, "a.pdf", orig.Metadata.Files[0].Name)
	assert.Equal(t, "search", orig.Metadata.ProcessingSteps[0].Name)
	assert.JSONEq(t, `{"a":1}`, string(orig.Metadata.Interactive))
	assert.Equal(t, FeedbackLiked, orig.Metadata.Feedback.Kind)
	assert.Empty(t, orig.Metadata.ResponseID)

	assert.Nil(t, Message{ID: "m2"}.Clone().Metadata)
}

func TestMessageJSON_OmitsEmpty(t *testing.T) {
	msg := Message{ID: "m1", Role: RoleUser, Content: "hi", Timestamp: time.Now().UTC()}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "parts")
	assert.NotContains(t, raw, "metadata")
}

func TestMessageMetadataJSON(t *testing.T) {
	msg := Message{
		ID:   "m1",
		Role: RoleAssistant,
		Metadata: &MessageMetadata{
			Files:           []FileRef{{Name: "a.dxf", URL: "/uploads/a.dxf", Size: 10}},
			ProcessingSteps: []ProcessingStep{{Name: "AI chat", ModuleType: "chatNode", RunningTime: 1.5}},
			Interactive:     json.RawMessage(`{"type":"userSelect"}`),
			Feedback:        &Feedback{Kind: FeedbackLiked},
			ResponseID:      "resp-1",
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Metadata)
	assert.Equal(t, "a.dxf", decoded.Metadata.Files[0].Name)
	assert.Equal(t, "chatNode", decoded.Metadata.ProcessingSteps[0].ModuleType)
	assert.JSONEq(t, `{"type":"userSelect"}`, string(decoded.Metadata.Interactive))
	assert.Equal(t, FeedbackLiked, decoded.Metadata.Feedback.Kind)
	assert.Equal(t, "resp-1", decoded.Metadata.ResponseID)
}

// --- Session tests ---

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "你好世界你好世...", Truncate("你好世界你好世界你好世界", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}

func TestDeriveTitle(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "system prompt"},
		{Role: RoleUser, Content: strings.Repeat("x", 40)},
		{Role: RoleUser, Content: "second"},
	}
	title := DeriveTitle(msgs)
	assert.Len(t, []rune(title), TitleMaxRunes)
	assert.True(t, strings.HasSuffix(title, "..."))

	assert.Equal(t, DefaultTitle, DeriveTitle(nil))
	assert.Equal(t, DefaultTitle, DeriveTitle([]Message{{Role: RoleAssistant, Content: "hi"}}))
}

func TestDerivePreview(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleAssistant},
	}
	assert.Equal(t, "answer", DerivePreview(msgs))
	assert.Equal(t, "", DerivePreview(nil))
}

func TestSessionFillDerivedKeepsExplicitTitle(t *testing.T) {
	s := ChatSession{
		Title:    "Pinned",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}
	s.FillDerived()
	assert.Equal(t, "Pinned", s.Title)
	assert.Equal(t, "hello", s.Preview)
}

func TestSessionSummary(t *testing.T) {
	now := time.Now().UTC()
	s := ChatSession{
		ID:        "s1",
		AgentID:   "a1",
		Title:     "t",
		Preview:   "p",
		Messages:  []Message{{Role: RoleUser}, {Role: RoleAssistant}},
		UpdatedAt: now,
	}
	sum := s.Summary()
	assert.Equal(t, SessionSummary{ID: "s1", AgentID: "a1", Title: "t", Preview: "p", MessageCount: 2, UpdatedAt: now}, sum)
}

// --- Agent tests ---

func TestAgentRedacted(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"short", "****"},
		{"fastgpt-abcdefghijkl", "fast****ijkl"},
	}
	for _, tt := range tests {
		a := Agent{ID: "a", APIKey: tt.key}
		assert.Equal(t, tt.want, a.Redacted().APIKey)
		assert.Equal(t, tt.key, a.APIKey, "original must not change")
	}
}

func TestAgentVariable(t *testing.T) {
	a := Agent{GlobalVariables: []GlobalVariable{{Key: "company", Type: VariableText}}}
	v, ok := a.Variable("company")
	assert.True(t, ok)
	assert.Equal(t, VariableText, v.Type)

	_, ok = a.Variable("missing")
	assert.False(t, ok)
}

func TestAgentJSON(t *testing.T) {
	minVal := 1.0
	agent := Agent{
		ID:     "agent-1",
		Name:   "Assistant",
		Type:   AgentTypeFastGPT,
		AppID:  "app-1",
		APIKey: "key",
		Order:  2,
		GlobalVariables: []GlobalVariable{
			{Key: "count", Label: "Count", Type: VariableNumber, Required: true, Validation: &VariableValidation{Min: &minVal}},
		},
	}

	data, err := json.Marshal(agent)
	require.NoError(t, err)

	var decoded Agent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, agent.ID, decoded.ID)
	assert.Equal(t, AgentTypeFastGPT, decoded.Type)
	require.Len(t, decoded.GlobalVariables, 1)
	assert.Equal(t, 1.0, *decoded.GlobalVariables[0].Validation.Min)
}

// --- Performance tests ---

func TestMetricStatsErrorRate(t *testing.T) {
	assert.Equal(t, 0.0, MetricStats{}.ErrorRate())
	assert.InDelta(t, 0.25, MetricStats{Count: 4, Errors: 1}.ErrorRate(), 1e-9)
}

func TestCategoriesOrder(t *testing.T) {
	assert.Equal(t, []Category{"frontend", "backend", "network", "code"}, Categories)
}
