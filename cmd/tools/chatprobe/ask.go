package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pcoscare/companion/internal/chatstream"
	"github.com/pcoscare/companion/internal/model/chat"
)

var (
	chatEndpoint string
	sessionID    string
	exportPath   string
	noGreeting   bool
)

var askCmd = &cobra.Command{
	Use:   "ask <utterance>...",
	Short: "Send one or more turns to the assessment chat",
	Long: `Each argument is sent as its own turn, in order, on the same session.
Replies are printed as they stream in and the full transcript is shown at
the end.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := chatEndpoint
		if endpoint == "" {
			endpoint = cfg.Upstream.ChatURL
		}

		opts := []chatstream.Option{
			chatstream.WithIdleTimeout(cfg.Chat.IdleTimeout),
			chatstream.WithSessionID(sessionID),
		}
		if !noGreeting && cfg.Chat.GreetingEnabled {
			greeting := cfg.Chat.Greeting
			if greeting == "" {
				greeting = chatstream.DefaultGreeting
			}
			opts = append(opts, chatstream.WithGreeting(greeting))
		}
		ctrl := chatstream.NewController(chatstream.NewHTTPTransport(endpoint, nil), opts...)
		defer ctrl.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		out := cmd.OutOrStdout()
		for _, utterance := range args {
			fmt.Fprintln(out, userMessageStyle.Render("You")+" "+utterance)
			fmt.Fprint(out, assistantMessageStyle.Render("Assistant")+" ")

			printer := &replyPrinter{}
			unsubscribe := ctrl.Subscribe(func(u chatstream.Update) {
				if u.Message != nil && u.Message.Sender == chat.SenderAssistant {
					fmt.Fprint(out, printer.delta(u.Message.Content))
				}
			})
			res, err := ctrl.Submit(ctx, utterance)
			unsubscribe()
			fmt.Fprintln(out)

			if err != nil {
				return err
			}
			if res.Err != nil {
				fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("turn failed (%s): %v", chatstream.KindOf(res.Err), res.Err)))
				break
			}
			if res.SkippedFrames > 0 {
				fmt.Fprintln(out, metaStyle.Render(fmt.Sprintf("skipped %d malformed frames", res.SkippedFrames)))
			}
		}

		state := ctrl.Snapshot()
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTranscript(state))

		if exportPath != "" {
			f, err := os.Create(exportPath)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer f.Close()
			if err := exportTranscript(f, endpoint, state); err != nil {
				return fmt.Errorf("failed to export transcript: %w", err)
			}
			fmt.Fprintln(out, metaStyle.Render("transcript written to "+exportPath))
		}
		return nil
	},
}

// replyPrinter turns successive full-content updates into printable deltas.
type replyPrinter struct {
	shown string
}

func (p *replyPrinter) delta(content string) string {
	if strings.HasPrefix(content, p.shown) {
		d := content[len(p.shown):]
		p.shown = content
		return d
	}
	// rewritten content: restart the line
	p.shown = content
	return "\n" + content
}

func init() {
	askCmd.Flags().StringVar(&chatEndpoint, "endpoint", "", "Chat endpoint URL (default: CHAT_ENDPOINT)")
	askCmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing server session id")
	askCmd.Flags().StringVar(&exportPath, "export", "", "Write the transcript to a YAML file")
	askCmd.Flags().BoolVar(&noGreeting, "no-greeting", false, "Start the transcript without the greeting")
	rootCmd.AddCommand(askCmd)
}
