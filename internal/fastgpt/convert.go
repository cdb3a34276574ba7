package fastgpt

import (
	"github.com/sashabaranov/go-openai"

	"github.com/aihub/agentdesk/internal/domain"
)

// ToOpenAIMessage converts a stored message to the wire format. Multimodal
// messages become MultiContent; file parts travel as text carrying the URL.
func ToOpenAIMessage(m domain.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{Role: string(m.Role)}
	if len(m.Parts) == 0 {
		out.Content = m.Content
		return out
	}

	parts := make([]openai.ChatMessagePart, 0, len(m.Parts)+1)
	if m.Content != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: m.Content})
	}
	for _, p := range m.Parts {
		switch p.Type {
		case domain.PartImage:
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: p.URL},
			})
		case domain.PartFile:
			text := p.URL
			if p.Name != "" {
				text = p.Name + ": " + p.URL
			}
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
		default:
			if p.Text != "" {
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
			}
		}
	}
	out.MultiContent = parts
	return out
}

// ToOpenAIMessages converts a history, optionally prefixed by a system prompt.
func ToOpenAIMessages(systemPrompt string, msgs []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range msgs {
		out = append(out, ToOpenAIMessage(m))
	}
	return out
}
