package domain

import "time"

// AgentType identifies which backend an agent talks to.
type AgentType string

const (
	AgentTypeFastGPT     AgentType = "fastgpt"
	AgentTypeCADAnalyzer AgentType = "cad-analyzer"
	AgentTypeImageEditor AgentType = "image-editor"
	AgentTypeCustom      AgentType = "custom"
)

// VariableType is the input kind of a global variable.
type VariableType string

const (
	VariableText    VariableType = "text"
	VariableNumber  VariableType = "number"
	VariableSelect  VariableType = "select"
	VariableBoolean VariableType = "boolean"
)

// VariableValidation holds optional constraints on a variable value.
type VariableValidation struct {
	Pattern   string   `json:"pattern,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MaxLength int      `json:"maxLength,omitempty"`
}

// GlobalVariable is a per-agent parameter the user supplies before chatting.
type GlobalVariable struct {
	Key          string              `json:"key"`
	Label        string              `json:"label"`
	Type         VariableType        `json:"type"`
	Required     bool                `json:"required,omitempty"`
	DefaultValue string              `json:"defaultValue,omitempty"`
	Options      []string            `json:"options,omitempty"`
	Validation   *VariableValidation `json:"validation,omitempty"`
}

// Agent is a configured AI chat persona backed by a FastGPT app.
type Agent struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Description         string           `json:"description,omitempty"`
	Type                AgentType        `json:"type"`
	APIURL              string           `json:"apiUrl,omitempty"`
	APIKey              string           `json:"apiKey,omitempty"`
	AppID               string           `json:"appId,omitempty"`
	SystemPrompt        string           `json:"systemPrompt,omitempty"`
	Model               string           `json:"model,omitempty"`
	Temperature         float64          `json:"temperature,omitempty"`
	MaxTokens           int              `json:"maxTokens,omitempty"`
	SupportsFileUpload  bool             `json:"supportsFileUpload,omitempty"`
	SupportsImageUpload bool             `json:"supportsImageUpload,omitempty"`
	SupportsStream      bool             `json:"supportsStream,omitempty"`
	GlobalVariables     []GlobalVariable `json:"globalVariables,omitempty"`
	IsPublished         bool             `json:"isPublished"`
	Order               int              `json:"order"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// Redacted returns a copy of the agent with the API key masked.
func (a Agent) Redacted() Agent {
	if a.APIKey == "" {
		return a
	}
	key := []rune(a.APIKey)
	if len(key) <= 8 {
		a.APIKey = "****"
		return a
	}
	a.APIKey = string(key[:4]) + "****" + string(key[len(key)-4:])
	return a
}

// Variable returns the variable definition with the given key.
func (a Agent) Variable(key string) (GlobalVariable, bool) {
	for _, v := range a.GlobalVariables {
		if v.Key == key {
			return v, true
		}
	}
	return GlobalVariable{}, false
}
