package domain

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartType classifies a multimodal content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
	PartFile  PartType = "file_url"
)

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	URL  string   `json:"url,omitempty"`
	Name string   `json:"name,omitempty"`
}

// FileRef points at an uploaded file attached to a message.
type FileRef struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ProcessingStep is one workflow node reported by FastGPT while answering.
type ProcessingStep struct {
	Name        string  `json:"name"`
	ModuleType  string  `json:"moduleType,omitempty"`
	Status      string  `json:"status,omitempty"`
	RunningTime float64 `json:"runningTime,omitempty"`
}

// FeedbackKind is the user's rating of an assistant message.
type FeedbackKind string

const (
	FeedbackLiked    FeedbackKind = "liked"
	FeedbackDisliked FeedbackKind = "disliked"
	FeedbackNone     FeedbackKind = ""
)

// Feedback records the user's rating of a message.
type Feedback struct {
	Kind      FeedbackKind `json:"kind"`
	Note      string       `json:"note,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// MessageMetadata is the free-form bag attached to a message.
type MessageMetadata struct {
	Files           []FileRef        `json:"files,omitempty"`
	ProcessingSteps []ProcessingStep `json:"processingSteps,omitempty"`
	Interactive     json.RawMessage  `json:"interactive,omitempty"`
	Feedback        *Feedback        `json:"feedback,omitempty"`
	ResponseID      string           `json:"responseId,omitempty"`
}

// Message is a single turn in a chat session.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Parts     []ContentPart    `json:"parts,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// Text returns the plain text of the message. For multimodal messages the
// text parts are joined with newlines.
func (m Message) Text() string {
	if m.Content != "" || len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// EnsureMetadata returns the message metadata, allocating it if needed.
func (m *Message) EnsureMetadata() *MessageMetadata {
	if m.Metadata == nil {
		m.Metadata = &MessageMetadata{}
	}
	return m.Metadata
}

// Clone returns a copy of m that shares no slices or pointers with it.
func (m Message) Clone() Message {
	m.Parts = slices.Clone(m.Parts)
	if m.Metadata != nil {
		md := *m.Metadata
		md.Files = slices.Clone(md.Files)
		md.ProcessingSteps = slices.Clone(md.ProcessingSteps)
		md.Interactive = slices.Clone(md.Interactive)
		if md.Feedback != nil {
			fb := *md.Feedback
			md.Feedback = &fb
		}
		m.Metadata = &md
	}
	return m
}
