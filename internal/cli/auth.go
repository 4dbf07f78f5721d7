package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newLoginCmd(o *options) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <handle>",
		Short: "Log in with an app password and save the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("SKYREADER_APP_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("an app password is required (--password or SKYREADER_APP_PASSWORD)")
			}

			a, done, err := o.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer done()

			session, err := a.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(o.out, "Logged in as %s (%s)\n", session.Handle, session.DID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "App password")
	return cmd
}

func newLogoutCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := o.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer done()

			if err := a.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(o.out, "Logged out")
			return nil
		},
	}
}
