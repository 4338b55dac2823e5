package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/ashureev/careportal/internal/auth"
	"github.com/ashureev/careportal/internal/domain"
	"github.com/spf13/cobra"
)

func (c *CLI) loginCommand() *cobra.Command {
	var user, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session",
		Long: `Sign in with a username or e-mail. The password is read from stdin
when --password is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := c.secret(password, "Password")
			if err != nil {
				return err
			}
			u, err := c.app.Auth.Login(cmd.Context(), user, secret)
			if err != nil {
				return err
			}
			c.Printer().Success("Logged in as %s", c.Printer().Bold(u.DisplayName))
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "username or e-mail")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default: read from stdin)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (c *CLI) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Logout(cmd.Context()); err != nil {
				return err
			}
			c.Printer().Success("Logged out")
			return nil
		},
	}
}

func (c *CLI) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in operator",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			s := c.app.Sessions.Current()
			if !s.Authenticated() {
				return &domain.Failure{Kind: domain.KindUnauthorized, Message: "Not logged in."}
			}
			p := c.Printer()
			p.Print("%s (%s)", p.Bold(s.User.DisplayName), s.User.Identifier)
			if s.User.Role != "" {
				p.Print("Role: %s", s.User.Role)
			}
			return nil
		},
	}
}

func (c *CLI) signupCommand() *cobra.Command {
	var user, password, role string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := c.secret(password, "Password")
			if err != nil {
				return err
			}
			msg, err := c.app.Auth.Signup(cmd.Context(), user, secret, role)
			if err != nil {
				return err
			}
			c.Printer().Success("%s", msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "username or e-mail")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default: read from stdin)")
	cmd.Flags().StringVar(&role, "role", auth.DefaultRole, "account role")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (c *CLI) forgotPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password EMAIL",
		Short: "Request a password reset e-mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := c.app.Auth.RequestPasswordReset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			c.Printer().Success("%s", msg)
			return nil
		},
	}
}

func (c *CLI) resetPasswordCommand() *cobra.Command {
	var token, password, confirm string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset token",
		Long: `Set a new password. The token comes from --token or from the reset
link in RESET_LINK. Both passwords are read from stdin when not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = c.app.Router.NavContext().ResetToken
			}
			secret, err := c.secret(password, "New password")
			if err != nil {
				return err
			}
			again, err := c.secret(confirm, "Confirm password")
			if err != nil {
				return err
			}
			msg, err := c.app.Auth.ResetPassword(cmd.Context(), token, secret, again)
			if err != nil {
				return err
			}
			c.Printer().Success("%s", msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "reset token from the e-mailed link")
	cmd.Flags().StringVarP(&password, "password", "p", "", "new password")
	cmd.Flags().StringVar(&confirm, "confirm", "", "new password again")
	return cmd
}

// secret returns value, or the next stdin line when it is empty.
func (c *CLI) secret(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	if c.reader == nil {
		c.reader = bufio.NewReader(c.in)
	}
	fmt.Fprintf(c.errOut, "%s: ", prompt)
	line, err := c.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
