package config

// Config is the root configuration for agentdesk.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway,omitempty"`
	FastGPT     FastGPTConfig     `yaml:"fastgpt,omitempty"`
	Proxy       ProxyConfig       `yaml:"proxy,omitempty"`
	Agents      AgentsConfig      `yaml:"agents,omitempty"`
	Session     SessionConfig     `yaml:"session,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Performance PerformanceConfig `yaml:"performance,omitempty"`
	Uploads     UploadsConfig     `yaml:"uploads,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int              `yaml:"port,omitempty"`
	Mode           string           `yaml:"mode,omitempty"` // "local" | "remote"
	Bind           string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string           `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth      `yaml:"auth,omitempty"`
	TLS            GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI      GatewayControlUI `yaml:"controlUi,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password" | "none"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI configures the browser front end served against the gateway.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// FastGPTConfig holds the default FastGPT endpoint used by agents that do
// not set their own apiUrl.
type FastGPTConfig struct {
	BaseURL        string `yaml:"baseUrl,omitempty"`
	APIKey         string `yaml:"apiKey,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
	MaxRetries     int    `yaml:"maxRetries,omitempty"`
}

// ProxyConfig restricts and tunes the chat proxy.
type ProxyConfig struct {
	AllowedHosts   []string `yaml:"allowedHosts,omitempty"`
	TimeoutSeconds int      `yaml:"timeoutSeconds,omitempty"`
	MaxBodyBytes   int64    `yaml:"maxBodyBytes,omitempty"`
}

// AgentsConfig defines agent defaults and agents seeded into the store at startup.
type AgentsConfig struct {
	Defaults AgentDefaults `yaml:"defaults,omitempty"`
	List     []AgentEntry  `yaml:"list,omitempty"`
}

// AgentDefaults defines default settings for all agents.
type AgentDefaults struct {
	Model       string   `yaml:"model,omitempty"`
	MaxTokens   int      `yaml:"maxTokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// AgentEntry defines a single agent.
type AgentEntry struct {
	ID           string          `yaml:"id"`
	Name         string          `yaml:"name,omitempty"`
	Description  string          `yaml:"description,omitempty"`
	Type         string          `yaml:"type,omitempty"` // "fastgpt" | "cad-analyzer" | "image-editor" | "custom"
	APIURL       string          `yaml:"apiUrl,omitempty"`
	APIKey       string          `yaml:"apiKey,omitempty"`
	AppID        string          `yaml:"appId,omitempty"`
	SystemPrompt string          `yaml:"systemPrompt,omitempty"`
	Model        string          `yaml:"model,omitempty"`
	Temperature  *float64        `yaml:"temperature,omitempty"`
	MaxTokens    int             `yaml:"maxTokens,omitempty"`
	FileUpload   bool            `yaml:"fileUpload,omitempty"`
	ImageUpload  bool            `yaml:"imageUpload,omitempty"`
	Stream       *bool           `yaml:"stream,omitempty"`
	Published    *bool           `yaml:"published,omitempty"`
	Order        int             `yaml:"order,omitempty"`
	Variables    []VariableEntry `yaml:"variables,omitempty"`
}

// VariableEntry defines a global variable an agent asks the user for.
type VariableEntry struct {
	Key       string   `yaml:"key"`
	Label     string   `yaml:"label,omitempty"`
	Type      string   `yaml:"type,omitempty"` // "text" | "number" | "select" | "boolean"
	Required  bool     `yaml:"required,omitempty"`
	Default   string   `yaml:"default,omitempty"`
	Options   []string `yaml:"options,omitempty"`
	Pattern   string   `yaml:"pattern,omitempty"`
	Min       *float64 `yaml:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty"`
	MaxLength int      `yaml:"maxLength,omitempty"`
}

// SessionConfig defines chat history storage.
type SessionConfig struct {
	Store       string `yaml:"store,omitempty"` // "sqlite" | "memory"
	MaxMessages int    `yaml:"maxMessages,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// PerformanceConfig tunes sampling, scoring budgets, alert rules and the
// upstream connection checker.
type PerformanceConfig struct {
	SampleWindow         int                `yaml:"sampleWindow,omitempty"`
	Budgets              map[string]float64 `yaml:"budgets,omitempty"` // metric -> p95 budget in ms
	Alerts               []AlertRuleEntry   `yaml:"alerts,omitempty"`
	CheckURL             string             `yaml:"checkUrl,omitempty"`
	CheckIntervalSeconds int                `yaml:"checkIntervalSeconds,omitempty"`
}

// AlertRuleEntry defines a threshold alert on a metric statistic.
type AlertRuleEntry struct {
	Metric    string  `yaml:"metric"`
	Stat      string  `yaml:"stat,omitempty"` // "mean" | "p50" | "p95" | "p99" | "max" | "errorRate"
	Op        string  `yaml:"op,omitempty"`   // ">" | "<"
	Threshold float64 `yaml:"threshold"`
	Severity  string  `yaml:"severity,omitempty"` // "info" | "warning" | "critical"
}

// UploadsConfig controls where uploaded files land.
type UploadsConfig struct {
	Dir       string `yaml:"dir,omitempty"`
	MaxSizeMB int    `yaml:"maxSizeMb,omitempty"`
}
