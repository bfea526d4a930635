package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dmchat/internal/services"
)

func (a *App) loginCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if username == "" {
				if username, err = a.readLine("Username: "); err != nil {
					return err
				}
			}
			password, err := a.readPassword("Password: ")
			if err != nil {
				return err
			}

			sess, err := a.Auth.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (@%s)\n", sess.User.Name(), sess.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	return cmd
}

func (a *App) registerCmd() *cobra.Command {
	var in services.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in to it",
		Long: `Create an account and sign in to it. Missing fields are prompted for.
The password needs at least 8 letters or digits, one of them a digit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompts := []struct {
				value  *string
				prompt string
			}{
				{&in.Username, "Username: "},
				{&in.DisplayName, "Display name: "},
				{&in.Email, "Email: "},
			}
			for _, p := range prompts {
				if *p.value != "" {
					continue
				}
				v, err := a.readLine(p.prompt)
				if err != nil {
					return err
				}
				*p.value = v
			}
			password, err := a.readPassword("Password: ")
			if err != nil {
				return err
			}
			in.Password = password

			sess, err := a.Auth.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! You are logged in as @%s\n", sess.User.Name(), sess.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Username, "username", "u", "", "account username")
	cmd.Flags().StringVar(&in.DisplayName, "display-name", "", "name shown to other users")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	return cmd
}

func (a *App) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (a *App) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		Short:   "Show the signed in user",
		Args:    cobra.NoArgs,
		PreRunE: a.requireSession,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _ := a.Sessions.Current()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (@%s)\n", sess.User.Name(), sess.User.Username)
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "session expires %s\n", humanize.RelTime(sess.ExpiresAt, a.now(), "ago", "from now"))
			}
			return nil
		},
	}
}
