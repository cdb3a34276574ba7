package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aihub/agentdesk/internal/domain"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Manage FastGPT agents",
	}

	cmd.AddCommand(newAgentsListCmd())
	cmd.AddCommand(newAgentsAddCmd())
	cmd.AddCommand(newAgentsRemoveCmd())
	cmd.AddCommand(newAgentsSelectCmd())
	cmd.AddCommand(newAgentsPublishCmd(true))
	cmd.AddCommand(newAgentsPublishCmd(false))
	return cmd
}

func newAgentsListCmd() *cobra.Command {
	var (
		published bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.agents.List(published)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				redacted := make([]domain.Agent, len(list))
				for i, ag := range list {
					redacted[i] = ag.Redacted()
				}
				return writeJSON(out, redacted)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "(no agents)")
				return nil
			}

			selected := a.prefs.LoadSelectedAgentID()
			for _, ag := range list {
				marks := ""
				if ag.ID == selected {
					marks += " (selected)"
				}
				if !ag.IsPublished {
					marks += " (draft)"
				}
				fmt.Fprintf(out, "  %-36s %-20s type=%s%s\n", ag.ID, ag.Name, ag.Type, marks)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&published, "published", false, "only published agents")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON with API keys masked")
	return cmd
}

func newAgentsAddCmd() *cobra.Command {
	var (
		ag      domain.Agent
		agType  string
		publish bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ag.Type = domain.AgentType(agType)
			ag.IsPublished = publish
			if err := a.agents.Create(&ag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created agent %s (%s)\n", ag.ID, ag.Name)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&ag.ID, "id", "", "agent id (generated when empty)")
	f.StringVar(&ag.Name, "name", "", "display name")
	f.StringVar(&ag.Description, "description", "", "description shown in the agent picker")
	f.StringVar(&agType, "type", string(domain.AgentTypeFastGPT), "fastgpt, cad-analyzer, image-editor or custom")
	f.StringVar(&ag.APIURL, "url", "", "FastGPT API base url (defaults to fastgpt.baseUrl)")
	f.StringVar(&ag.APIKey, "key", "", "FastGPT app API key (defaults to fastgpt.apiKey)")
	f.StringVar(&ag.AppID, "app-id", "", "FastGPT app id")
	f.StringVar(&ag.SystemPrompt, "prompt", "", "system prompt")
	f.BoolVar(&ag.SupportsStream, "stream", true, "stream replies")
	f.BoolVar(&ag.SupportsFileUpload, "files", false, "accept file uploads")
	f.BoolVar(&ag.SupportsImageUpload, "images", false, "accept image uploads")
	f.BoolVar(&publish, "publish", true, "make the agent visible to chat users")
	return cmd
}

func newAgentsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an agent and its stored variables",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.agents.Delete(args[0]); err != nil {
				return fmt.Errorf("agent %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed agent %s\n", args[0])
			return nil
		},
	}
}

func newAgentsSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Make an agent the default for new chats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.agents.Select(args[0]); err != nil {
				return fmt.Errorf("agent %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Selected agent %s\n", args[0])
			return nil
		},
	}
}

func newAgentsPublishCmd(publish bool) *cobra.Command {
	use, short := "publish <id>", "Show an agent to chat users"
	if !publish {
		use, short = "unpublish <id>", "Hide an agent from chat users"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.agents.SetPublished(args[0], publish); err != nil {
				return fmt.Errorf("agent %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent %s published=%v\n", args[0], publish)
			return nil
		},
	}
}
