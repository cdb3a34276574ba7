package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/store"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect and manage stored chat sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsSearchCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsImportCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			return printSummaries(cmd.OutOrStdout(), a.sessions.GetAllChatSessions(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSessionsSearchCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search session titles and message text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			return printSummaries(cmd.OutOrStdout(), a.sessions.SearchChatSessions(args[0]), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSessionsShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.sessions.GetChatSession(args[0])
			if err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, sess)
			}
			fmt.Fprintf(out, "%s  %s  agent=%s\n\n", sess.ID, sess.Title, sess.AgentID)
			for _, m := range sess.Messages {
				line := fmt.Sprintf("[%s] %-9s %s", m.Timestamp.Format("2006-01-02 15:04"), m.Role, m.Text())
				if m.Metadata != nil && m.Metadata.Feedback != nil && m.Metadata.Feedback.Kind != domain.FeedbackNone {
					line += fmt.Sprintf("  (%s)", m.Metadata.Feedback.Kind)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.sessions.GetChatSession(args[0]); err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}
			if err := a.sessions.DeleteChatSession(args[0]); err != nil {
				return err
			}
			if a.prefs.LoadSelectedChatID() == args[0] {
				if err := a.prefs.SaveSelectedChat(""); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newSessionsImportCmd() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import chat history exported from the browser client",
		Long: "Import reads a JSON export of browser chat history, either an array of sessions " +
			"or an object keyed by session id, and stores every session. Malformed JSON is repaired when possible.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			list, err := store.DecodeLegacySessions(data)
			if err != nil {
				return err
			}

			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			imported, skipped := 0, 0
			for i := range list {
				sess := &list[i]
				if !overwrite {
					_, err := a.sessions.GetChatSession(sess.ID)
					if err == nil {
						skipped++
						continue
					}
					if !errors.Is(err, store.ErrNotFound) {
						return err
					}
				}
				if err := a.sessions.SaveChatSession(sess); err != nil {
					return fmt.Errorf("saving session %s: %w", sess.ID, err)
				}
				imported++
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d session(s), skipped %d existing\n", imported, skipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace sessions that already exist")
	return cmd
}

func printSummaries(w io.Writer, list []domain.SessionSummary, asJSON bool) error {
	if asJSON {
		return writeJSON(w, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "(no sessions)")
		return nil
	}
	for _, s := range list {
		fmt.Fprintf(w, "  %-36s %-24s %3d msgs  %s\n",
			s.ID, domain.Truncate(s.Title, 24), s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
