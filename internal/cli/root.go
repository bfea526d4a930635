package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dmchat/internal/tui"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Command builds the dmchat command tree. Without a subcommand it starts the
// terminal UI.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "dmchat",
		Short: "Direct messages from the terminal",
		Long: `dmchat signs you in to a direct-messaging server, lists your chats and
follows a conversation live. Run it without arguments for the full-screen UI.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          a.runTUI,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.AddCommand(
		a.loginCmd(),
		a.registerCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.chatsCmd(),
		a.chatCmd(),
		a.messagesCmd(),
		a.sendCmd(),
		a.watchCmd(),
		&cobra.Command{
			Use:   "tui",
			Short: "Open the full-screen chat UI",
			Args:  cobra.NoArgs,
			RunE:  a.runTUI,
		},
	)
	return root
}

// Execute runs args and returns the process exit code.
func Execute(ctx context.Context, a *App, args []string) int {
	go a.Reconciler.Run(ctx)

	root := a.Command()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	a.flushNotices()
	if err != nil {
		fmt.Fprintf(a.errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *App) runTUI(cmd *cobra.Command, args []string) error {
	return tui.Run(cmd.Context(), tui.Deps{
		Auth:       a.Auth,
		Chats:      a.Chats,
		Thread:     a.Reconciler,
		Notices:    a.Notifier,
		ResolveURL: a.API.ResolveURL,
		Logger:     a.Log,
	})
}

// requireSession resumes the stored session before commands that call
// authenticated endpoints.
func (a *App) requireSession(cmd *cobra.Command, args []string) error {
	if _, err := a.Auth.Restore(cmd.Context()); err != nil {
		return fmt.Errorf("not logged in, run 'dmchat login': %w", err)
	}
	return nil
}
