package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aihub/agentdesk/internal/config"
	"github.com/aihub/agentdesk/internal/gateway"
	"github.com/aihub/agentdesk/internal/logging"
)

func newServeCmd() *cobra.Command {
	var (
		port    int
		bind    string
		logFile bool
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Start the HTTP/WebSocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// The --log-level flag wins over the config file.
			if logLevel == "" {
				l, closer, err := logging.NewWithOptions(logging.Options{
					Level: cfg.Logging.Level,
					Style: cfg.Logging.ConsoleStyle,
					File:  resolveLogFile(cfg.Logging.File, logFile),
				})
				if err != nil {
					return fmt.Errorf("opening log output: %w", err)
				}
				defer closer.Close()
				log = l
			}

			// Raw config backs config.get/config.set over RPC.
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = make(map[string]any)
			}

			a, err := openApp(cfg, paths, log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := gateway.New(cfg, log, a.gatewayOptions(raw)...)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "gateway port (overrides config)")
	cmd.Flags().StringVar(&bind, "bind", "", "bind mode: loopback, lan, auto, custom (overrides config)")
	cmd.Flags().BoolVar(&logFile, "log-file", false, "also write JSON logs to the logs directory")

	return cmd
}

// resolveLogFile places a relative logging.file under the logs directory.
// With no file configured, toFile selects the default log file.
func resolveLogFile(configured string, toFile bool) string {
	switch {
	case configured != "" && !filepath.IsAbs(configured):
		return filepath.Join(paths.Logs, configured)
	case configured != "":
		return configured
	case toFile:
		return paths.LogFile()
	}
	return ""
}
