package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func (a *App) chatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "chats",
		Short:   "List your chats",
		Args:    cobra.NoArgs,
		PreRunE: a.requireSession,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.Chats.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No chats yet. Start one with: dmchat chat new <username>")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "#%-5d %s (@%s)\n", e.Chat.ID, e.Counterpart.Name(), e.Counterpart.Username)
			}
			return nil
		},
	}
}

func (a *App) chatCmd() *cobra.Command {
	chat := &cobra.Command{
		Use:   "chat",
		Short: "Manage chats",
	}
	chat.AddCommand(&cobra.Command{
		Use:     "new <username>",
		Short:   "Start a direct chat with a user",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.requireSession,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.Chats.Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chat #%d with @%s is ready\n", id, args[0])
			return nil
		},
	})
	return chat
}

func parseChatID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chat id %q", arg)
	}
	return id, nil
}
