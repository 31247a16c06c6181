package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olivoil/projectboard/internal/auth"
)

func newSignupCmd(e *env) *cobra.Command {
	var in auth.SignUpInput
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a team member and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if in.Password == "" {
				pw, err := readPassword(e.in, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				in.Password = pw
			}
			p, err := e.auth.SignUp(ctx, in)
			if err != nil {
				return err
			}
			if _, err := e.auth.SignIn(ctx, in.Email, in.Password); err != nil {
				return fmt.Errorf("sign in after signup: %w", err)
			}
			return renderProfile(e, p, "Signed up as")
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.RoleName, "role", "", "role: admin, pm or dev (default dev)")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSigninCmd(e *env) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				pw, err := readPassword(e.in, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = pw
			}
			s, err := e.auth.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return renderProfile(e, s.Profile, "Signed in as")
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSignoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.auth.SignOut(); err != nil {
				return err
			}
			_, err := fmt.Fprintln(e.out, "Signed out.")
			return err
		},
	}
}

func newWhoamiCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := e.auth.Current(cmd.Context())
			if err != nil {
				return err
			}
			return renderProfile(e, p, "")
		},
	}
}

func newProfileCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := e.auth.Current(cmd.Context())
			if err != nil {
				return err
			}
			return renderProfile(e, p, "")
		},
	}
	cmd.AddCommand(newProfileSetCmd(e))
	return cmd
}

func newProfileSetCmd(e *env) *cobra.Command {
	var in auth.ProfileUpdate
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change your name or email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := e.auth.UpdateProfile(cmd.Context(), in)
			if err != nil {
				return err
			}
			return renderProfile(e, p, "Updated")
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "new display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "new email address")
	cmd.MarkFlagsOneRequired("name", "email")
	return cmd
}

func renderProfile(e *env, p auth.Profile, prefix string) error {
	if e.output == formatTable && prefix != "" {
		_, err := fmt.Fprintf(e.out, "%s %s <%s> (%s)\n", prefix, p.Name, p.Email, p.RoleName)
		return err
	}
	return renderValue(e.out, e.output, p, [][2]string{
		{"id", p.ID},
		{"name", p.Name},
		{"email", p.Email},
		{"role", p.RoleName},
	})
}

// readPassword reads one line from r. Input is not masked.
func readPassword(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password is required")
	}
	return pw, nil
}
