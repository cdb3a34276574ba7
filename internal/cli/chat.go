package cli

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aihub/agentdesk/internal/chat"
	"github.com/aihub/agentdesk/internal/fastgpt"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent from the terminal",
	}

	cmd.AddCommand(newChatSendCmd())
	return cmd
}

func newChatSendCmd() *cobra.Command {
	var (
		agentID   string
		sessionID string
		stream    bool
		vars      map[string]string
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a message to an agent and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			a, err := openConfiguredApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			streamed := false
			res, err := a.runner.Send(ctx, chat.SendRequest{
				AgentID:   agentID,
				SessionID: sessionID,
				Content:   message,
				Variables: vars,
				Stream:    stream,
			}, func(ev fastgpt.StreamEvent) {
				if ev.Type == fastgpt.EventAnswer || ev.Type == fastgpt.EventFastAnswer {
					streamed = true
					fmt.Fprint(out, ev.Content)
				}
			})
			if err != nil {
				if streamed {
					fmt.Fprintln(out)
				}
				return err
			}

			if streamed {
				fmt.Fprintln(out)
			} else {
				fmt.Fprintln(out, res.Reply.Text())
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\n[session %s, agent %s, %s]\n",
				res.SessionID, res.AgentID, res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "agent id (defaults to the selected agent)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the reply as it is generated")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "global variable as key=value (repeatable)")
	return cmd
}
