package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dmchat/internal/api"
	"dmchat/internal/domain"
	dmchat_errors "dmchat/pkg/errors"
)

func (a *App) messagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "messages <chat-id>",
		Short:   "Print the history of a chat",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.requireSession,
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			msgs, err := a.API.ListMessages(cmd.Context(), chatID)
			if err != nil {
				a.Notifier.Error(dmchat_errors.OpLoadHistory, err)
				return err
			}
			if limit > 0 && len(msgs) > limit {
				msgs = msgs[len(msgs)-limit:]
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No messages yet")
				return nil
			}
			now := a.now()
			for _, m := range msgs {
				writeMessage(out, "", m, a.API.ResolveURL, now)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "only print the last n messages")
	return cmd
}

func (a *App) sendCmd() *cobra.Command {
	var (
		imagePath string
		reply     string
	)
	cmd := &cobra.Command{
		Use:     "send <chat-id> [text...]",
		Short:   "Send a message",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: a.requireSession,
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			in := api.SendMessageInput{
				ChatID:       chatID,
				Content:      strings.Join(args[1:], " "),
				ReplyContent: reply,
			}
			if imagePath != "" {
				if in.Image, err = api.OpenAttachment(imagePath); err != nil {
					return err
				}
			}
			if err := a.API.SendMessage(cmd.Context(), in); err != nil {
				a.Notifier.Error(dmchat_errors.OpSendMessage, err)
				return err
			}
			if in.Image != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Sent with %s (%s)\n", in.Image.Name, humanize.Bytes(uint64(in.Image.Size())))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Sent")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "attach the image at this path")
	cmd.Flags().StringVar(&reply, "reply", "", "quote this text as the message being answered")
	return cmd
}

// writeMessage prints m as a block headed by the sender and sent time.
func writeMessage(w io.Writer, prefix string, m domain.Message, resolve func(string) string, now time.Time) {
	fmt.Fprintf(w, "%s[%d] %s  %s (%s)\n", prefix, m.ID, m.Sender.Name(),
		m.SentTime.Local().Format("15:04"), humanize.RelTime(m.SentTime, now, "ago", "from now"))
	if m.IsReply() {
		fmt.Fprintf(w, "    > %s\n", m.ReplyContent)
	}
	if m.HasImage() {
		fmt.Fprintf(w, "    [image] %s\n", resolve(m.ImageURL))
	}
	if m.Content != "" {
		fmt.Fprintf(w, "    %s\n", m.Content)
	}
}
