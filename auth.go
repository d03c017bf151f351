package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/structured-notes/notes-go/internal/account"
	"github.com/structured-notes/notes-go/internal/api"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in with a username and password",
		Long: `Sign in to the notes server. The password is read without echo when
stdin is a terminal, otherwise from the first line of stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear local state",
		RunE:  runLogout,
	}
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runRegister,
	}

	cmd.Flags().String("email", "", "email address (required)")
	cmd.Flags().String("firstname", "", "first name")
	cmd.Flags().String("lastname", "", "last name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user",
		RunE:  runWhoami,
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server, session and token status without contacting the server",
		RunE:  runStatus,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	in := bufio.NewReader(cmd.InOrStdin())

	username := ""
	if len(args) == 1 {
		username = args[0]
	} else {
		var err error
		if username, err = prompt(in, "Username: "); err != nil {
			return err
		}
	}

	password, err := readPassword(cmd.InOrStdin(), in)
	if err != nil {
		return err
	}

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		cc.Logger.Info("login started", "username", username, "server", cc.Cfg.Server.BaseURL)

		u, err := app.Account.Login(ctx, username, password)
		if err != nil {
			return loginError(err)
		}

		cc.Statusf("Logged in as %s.\n", u.Username)

		return nil
	})
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		if err := app.Account.Logout(ctx); err != nil {
			cc.Statusf("Local session cleared; the server logout failed.\n")

			return fmt.Errorf("logging out: %w", err)
		}

		cc.Statusf("Logged out.\n")

		return nil
	})
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	email, _ := cmd.Flags().GetString("email")
	firstname, _ := cmd.Flags().GetString("firstname")
	lastname, _ := cmd.Flags().GetString("lastname")

	password, err := readPassword(cmd.InOrStdin(), bufio.NewReader(cmd.InOrStdin()))
	if err != nil {
		return err
	}

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		u, err := app.Account.Register(ctx, account.Registration{
			Username:  args[0],
			Email:     email,
			Password:  password,
			Firstname: firstname,
			Lastname:  lastname,
		})
		if err != nil {
			return fmt.Errorf("registering: %w", err)
		}

		cc.Statusf("Account %s created. Run 'notes-go login %s' to sign in.\n", u.Username, u.Username)

		return nil
	})
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		if err := app.requireLogin(ctx); err != nil {
			return err
		}

		u, err := app.Account.Me(ctx)
		if err != nil {
			return fmt.Errorf("fetching user: %w", err)
		}

		w := cmd.OutOrStdout()
		if cc.Structured() {
			return printStructured(w, cc.Flags.Format, u)
		}

		printUser(w, u)

		return nil
	})
}

func printUser(w io.Writer, u account.User) {
	name := strings.TrimSpace(u.Firstname + " " + u.Lastname)
	if name == "" {
		name = "-"
	}

	printTable(w, []string{"ID", "USERNAME", "NAME", "EMAIL", "ROLE"}, [][]string{
		{u.ID, u.Username, name, u.Email, u.Role.String()},
	})
}

// statusOutput is the schema for `status --format json|yaml`.
type statusOutput struct {
	Server     string        `json:"server" yaml:"server"`
	ConfigPath string        `json:"config_path" yaml:"config_path"`
	StatePath  string        `json:"state_path" yaml:"state_path"`
	LoggedIn   bool          `json:"logged_in" yaml:"logged_in"`
	User       *account.User `json:"user,omitempty" yaml:"user,omitempty"`
	Token      *tokenStatus  `json:"token,omitempty" yaml:"token,omitempty"`
}

type tokenStatus struct {
	Subject   string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Role      string    `json:"role,omitempty" yaml:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
	Expired   bool      `json:"expired" yaml:"expired"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		out := buildStatus(ctx, cc, app, time.Now())

		w := cmd.OutOrStdout()
		if cc.Structured() {
			return printStructured(w, cc.Flags.Format, out)
		}

		printStatusText(w, out)

		return nil
	})
}

func buildStatus(ctx context.Context, cc *CLIContext, app *App, now time.Time) statusOutput {
	out := statusOutput{
		Server:     cc.Cfg.Server.BaseURL,
		ConfigPath: cc.Cfg.ConfigPath,
		StatePath:  cc.Cfg.StatePath(),
		LoggedIn:   app.Account.LoggedIn(ctx),
	}

	if u, ok := app.Account.User(); ok {
		out.User = &u
	}

	claims, err := app.Client.SessionClaims()
	switch {
	case errors.Is(err, api.ErrNoSession):
	case err != nil:
		cc.Logger.Debug("cannot decode access token", "error", err)
	default:
		ts := &tokenStatus{Subject: claims.Subject, Role: claims.Role, Expired: claims.Expired(now)}
		if claims.ExpiresAt != nil {
			ts.ExpiresAt = claims.ExpiresAt.Time
		}

		out.Token = ts
	}

	return out
}

func printStatusText(w io.Writer, out statusOutput) {
	fmt.Fprintf(w, "Server:  %s\n", out.Server)
	fmt.Fprintf(w, "Config:  %s\n", out.ConfigPath)
	fmt.Fprintf(w, "State:   %s\n", out.StatePath)

	if !out.LoggedIn {
		fmt.Fprintln(w, "Session: not logged in")

		return
	}

	who := "unknown user"
	if out.User != nil {
		who = out.User.Username
	}

	fmt.Fprintf(w, "Session: logged in as %s\n", who)

	switch {
	case out.Token == nil:
		fmt.Fprintln(w, "Token:   missing (refreshed on next request)")
	case out.Token.Expired:
		fmt.Fprintf(w, "Token:   expired %s (refreshed on next request)\n", formatTime(out.Token.ExpiresAt, time.Now()))
	default:
		fmt.Fprintf(w, "Token:   valid until %s\n", formatTime(out.Token.ExpiresAt, time.Now()))
	}
}

// loginError turns a rejected login into a short message while keeping the
// envelope reachable through errors.As.
func loginError(err error) error {
	var resErr *api.ResultError
	if errors.As(err, &resErr) && !resErr.Result.IsTransport() && resErr.Result.Message != "" {
		return fmt.Errorf("login failed: %s: %w", resErr.Result.Message, err)
	}

	return fmt.Errorf("login failed: %w", err)
}

// prompt writes label to stderr and reads one trimmed line.
func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)

	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// readPassword reads the password without echo when raw is a terminal and
// falls back to a line from in otherwise.
func readPassword(raw io.Reader, in *bufio.Reader) (string, error) {
	if f, ok := raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, "Password: ")

		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return string(b), nil
	}

	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}
