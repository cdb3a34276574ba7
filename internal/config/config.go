package config

// ConfigError reports an unreadable config file or a bad key path.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "config: " + e.Message }

// DefaultFastGPTURL is the hosted FastGPT API.
const DefaultFastGPTURL = "https://zktecoaihub.com/api"

const (
	DefaultPort          = 18790
	defaultTimeoutSecs   = 120
	defaultMaxBodyBytes  = 10 << 20
	defaultMaxMessages   = 500
	defaultSampleWindow  = 1000
	defaultCheckInterval = 30
	defaultMaxUploadMB   = 20
)

// Defaults is the configuration used for every key a file leaves unset.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: DefaultPort,
			Mode: "local",
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		FastGPT: FastGPTConfig{
			BaseURL:        DefaultFastGPTURL,
			TimeoutSeconds: defaultTimeoutSecs,
			MaxRetries:     2,
		},
		Proxy: ProxyConfig{
			AllowedHosts:   []string{"zktecoaihub.com"},
			TimeoutSeconds: defaultTimeoutSecs,
			MaxBodyBytes:   defaultMaxBodyBytes,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		Session: SessionConfig{
			Store:       "sqlite",
			MaxMessages: defaultMaxMessages,
		},
		Performance: PerformanceConfig{
			SampleWindow:         defaultSampleWindow,
			CheckIntervalSeconds: defaultCheckInterval,
		},
		Uploads: UploadsConfig{
			MaxSizeMB: defaultMaxUploadMB,
		},
	}
}
