package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var (
	validLogLevels     = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	validAgentTypes    = []string{"fastgpt", "cad-analyzer", "image-editor", "custom"}
	validVariableTypes = []string{"text", "number", "select", "boolean"}
	validAlertStats    = []string{"mean", "p50", "p95", "p99", "max", "errorRate"}
	validSeverities    = []string{"info", "warning", "critical"}
)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}

	validModes := []string{"local", "remote"}
	if cfg.Gateway.Mode != "" && !slices.Contains(validModes, cfg.Gateway.Mode) {
		add("gateway.mode", "must be one of %v, got %q", validModes, cfg.Gateway.Mode)
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}

	validAuthModes := []string{"token", "password", "none"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	}
	if cfg.Gateway.Auth.Mode == "none" && cfg.Gateway.Bind != "" && cfg.Gateway.Bind != "loopback" {
		add("gateway.auth.mode", "auth mode none is only allowed with loopback bind")
	}

	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	// FastGPT validation
	if cfg.FastGPT.BaseURL != "" {
		if u, err := url.Parse(cfg.FastGPT.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("fastgpt.baseUrl", "must be an absolute URL, got %q", cfg.FastGPT.BaseURL)
		}
	}
	if cfg.FastGPT.MaxRetries < 0 || cfg.FastGPT.MaxRetries > 10 {
		add("fastgpt.maxRetries", "must be 0-10, got %d", cfg.FastGPT.MaxRetries)
	}
	if cfg.FastGPT.TimeoutSeconds < 0 {
		add("fastgpt.timeoutSeconds", "must not be negative")
	}

	// Proxy validation
	if cfg.Proxy.MaxBodyBytes < 0 {
		add("proxy.maxBodyBytes", "must not be negative")
	}

	// Logging validation
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// Session validation
	validStores := []string{"sqlite", "memory"}
	if cfg.Session.Store != "" && !slices.Contains(validStores, cfg.Session.Store) {
		add("session.store", "must be one of %v, got %q", validStores, cfg.Session.Store)
	}
	if cfg.Session.MaxMessages < 0 {
		add("session.maxMessages", "must not be negative")
	}

	// Agents validation
	seen := make(map[string]bool)
	for i, a := range cfg.Agents.List {
		prefix := fmt.Sprintf("agents.list[%d]", i)
		if a.ID == "" {
			add(prefix+".id", "id is required")
		} else if seen[a.ID] {
			add(prefix+".id", "duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true

		if a.Type != "" && !slices.Contains(validAgentTypes, a.Type) {
			add(prefix+".type", "must be one of %v, got %q", validAgentTypes, a.Type)
		}
		for j, v := range a.Variables {
			vp := fmt.Sprintf("%s.variables[%d]", prefix, j)
			if v.Key == "" {
				add(vp+".key", "key is required")
			}
			if v.Type != "" && !slices.Contains(validVariableTypes, v.Type) {
				add(vp+".type", "must be one of %v, got %q", validVariableTypes, v.Type)
			}
			if v.Type == "select" && len(v.Options) == 0 {
				add(vp+".options", "select variables need at least one option")
			}
			if v.Pattern != "" {
				if _, err := regexp.Compile(v.Pattern); err != nil {
					add(vp+".pattern", "invalid pattern: %v", err)
				}
			}
			if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
				add(vp+".min", "min %g is greater than max %g", *v.Min, *v.Max)
			}
		}
	}

	// Performance validation
	for i, r := range cfg.Performance.Alerts {
		prefix := fmt.Sprintf("performance.alerts[%d]", i)
		if r.Metric == "" {
			add(prefix+".metric", "metric is required")
		}
		if r.Stat != "" && !slices.Contains(validAlertStats, r.Stat) {
			add(prefix+".stat", "must be one of %v, got %q", validAlertStats, r.Stat)
		}
		if r.Op != "" && r.Op != ">" && r.Op != "<" {
			add(prefix+".op", "must be > or <, got %q", r.Op)
		}
		if r.Severity != "" && !slices.Contains(validSeverities, r.Severity) {
			add(prefix+".severity", "must be one of %v, got %q", validSeverities, r.Severity)
		}
	}
	if cfg.Performance.SampleWindow < 0 {
		add("performance.sampleWindow", "must not be negative")
	}

	if cfg.Uploads.MaxSizeMB < 0 {
		add("uploads.maxSizeMb", "must not be negative")
	}

	return issues
}
