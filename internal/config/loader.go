package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envRef matches ${VAR} references inside credential fields.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvRefs substitutes ${VAR} with its value. References to unset
// variables stay as written so a missing secret is visible in validation.
func expandEnvRefs(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if val, ok := os.LookupEnv(ref[2 : len(ref)-1]); ok {
			return val
		}
		return ref
	})
}

// expandSecrets resolves env references in every credential field.
func expandSecrets(cfg *Config) {
	for _, p := range []*string{&cfg.Gateway.Auth.Token, &cfg.Gateway.Auth.Password, &cfg.FastGPT.APIKey} {
		*p = expandEnvRefs(*p)
	}
	for i := range cfg.Agents.List {
		cfg.Agents.List[i].APIKey = expandEnvRefs(cfg.Agents.List[i].APIKey)
	}
}

// Load reads the YAML file at path over Defaults and applies AGENTDESK_*
// environment overrides. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		applyEnvOverrides(&cfg)
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSecrets(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file as a generic document for key-path edits.
func LoadRaw(path string) (map[string]any, error) {
	raw := map[string]any{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return raw, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw replaces the config file with raw. The file is written next to
// its destination and renamed so readers never see a partial document.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func orDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

// applyDefaults restores defaults for fields the file left empty.
func applyDefaults(cfg *Config) {
	d := Defaults()
	orDefault(&cfg.Gateway.Port, d.Gateway.Port)
	orDefault(&cfg.Gateway.Mode, d.Gateway.Mode)
	orDefault(&cfg.Gateway.Bind, d.Gateway.Bind)
	orDefault(&cfg.Gateway.Auth.Mode, d.Gateway.Auth.Mode)
	orDefault(&cfg.FastGPT.BaseURL, d.FastGPT.BaseURL)
	orDefault(&cfg.FastGPT.TimeoutSeconds, d.FastGPT.TimeoutSeconds)
	orDefault(&cfg.Proxy.TimeoutSeconds, d.Proxy.TimeoutSeconds)
	orDefault(&cfg.Proxy.MaxBodyBytes, d.Proxy.MaxBodyBytes)
	if len(cfg.Proxy.AllowedHosts) == 0 {
		cfg.Proxy.AllowedHosts = d.Proxy.AllowedHosts
	}
	orDefault(&cfg.Logging.Level, d.Logging.Level)
	orDefault(&cfg.Logging.ConsoleStyle, d.Logging.ConsoleStyle)
	orDefault(&cfg.Session.Store, d.Session.Store)
	orDefault(&cfg.Session.MaxMessages, d.Session.MaxMessages)
	orDefault(&cfg.Performance.SampleWindow, d.Performance.SampleWindow)
	orDefault(&cfg.Performance.CheckIntervalSeconds, d.Performance.CheckIntervalSeconds)
	orDefault(&cfg.Uploads.MaxSizeMB, d.Uploads.MaxSizeMB)
}

// envOverrides maps AGENTDESK_* variables onto config fields. Values that
// do not parse are ignored.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, v string)
}{
	{"AGENTDESK_GATEWAY_PORT", func(cfg *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}},
	{"AGENTDESK_GATEWAY_MODE", func(cfg *Config, v string) { cfg.Gateway.Mode = v }},
	{"AGENTDESK_GATEWAY_BIND", func(cfg *Config, v string) { cfg.Gateway.Bind = v }},
	{"AGENTDESK_LOG_LEVEL", func(cfg *Config, v string) { cfg.Logging.Level = strings.ToLower(v) }},
	{"AGENTDESK_FASTGPT_URL", func(cfg *Config, v string) { cfg.FastGPT.BaseURL = v }},
	{"AGENTDESK_FASTGPT_KEY", func(cfg *Config, v string) { cfg.FastGPT.APIKey = v }},
	{"AGENTDESK_SESSION_STORE", func(cfg *Config, v string) { cfg.Session.Store = v }},
	{"AGENTDESK_PROXY_ALLOWED_HOSTS", func(cfg *Config, v string) {
		var hosts []string
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		if len(hosts) > 0 {
			cfg.Proxy.AllowedHosts = hosts
		}
	}},
	{"AGENTDESK_UPLOADS_DIR", func(cfg *Config, v string) { cfg.Uploads.Dir = v }},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}
