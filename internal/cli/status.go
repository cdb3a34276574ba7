package cli

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aihub/agentdesk/internal/config"
	"github.com/aihub/agentdesk/internal/retry"
	"github.com/aihub/agentdesk/internal/version"
)

func newStatusCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show agentdesk status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			b := version.Get()
			fmt.Fprintf(out, "agentdesk %s (commit %s)\n\n", b.Version, b.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Uploads: %s\n", paths.Uploads)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)
			fmt.Fprintf(out, "FastGPT: url=%s timeout=%ds retries=%d\n",
				cfg.FastGPT.BaseURL, cfg.FastGPT.TimeoutSeconds, cfg.FastGPT.MaxRetries)
			fmt.Fprintf(out, "Session: store=%s maxMessages=%d\n", cfg.Session.Store, cfg.Session.MaxMessages)
			fmt.Fprintf(out, "Proxy:   hosts=%s\n", strings.Join(cfg.Proxy.AllowedHosts, ","))
			fmt.Fprintf(out, "Perf:    window=%d budgets=%d alerts=%d\n",
				cfg.Performance.SampleWindow, len(cfg.Performance.Budgets), len(cfg.Performance.Alerts))

			if len(cfg.Agents.List) > 0 {
				for _, a := range cfg.Agents.List {
					fmt.Fprintf(out, "Agent:   id=%s name=%s type=%s\n", a.ID, a.Name, a.Type)
				}
			} else {
				fmt.Fprintln(out, "Agent:   (none in config)")
			}

			if probe {
				url := cfg.Performance.CheckURL
				if url == "" {
					url = cfg.FastGPT.BaseURL
				}
				checker := retry.NewChecker(url, time.Minute, &http.Client{Timeout: checkTimeout}, log)
				st := checker.Check(cmd.Context())
				if st.LastError != "" {
					fmt.Fprintf(out, "Upstream: %s (%s)\n", st.State, st.LastError)
				} else {
					fmt.Fprintf(out, "Upstream: %s\n", st.State)
				}
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "check that the FastGPT endpoint is reachable")
	return cmd
}
