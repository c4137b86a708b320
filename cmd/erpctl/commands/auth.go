package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/erpctl/internal/app"
	"github.com/florianilch/erpctl/internal/authservice"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in and store the session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "ERP username (prompted if omitted)",
			},
			&cli.BoolFlag{
				Name:  "password-stdin",
				Usage: "read the password from stdin instead of prompting",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				creds, err := promptCredentials(cmd, os.Stdin, cmd.Root().ErrWriter)
				if err != nil {
					return err
				}

				user, err := a.Auth().Login(ctx, creds)
				if err != nil {
					return err
				}

				name := strings.TrimSpace(user.Name + " " + user.LastName)
				if name == "" {
					name = user.Username
				}
				_, err = fmt.Fprintf(cmd.Root().Writer, "Logged in as %s (%s)\n", name, joinRoles(user.Roles))
				return err
			})
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "revoke the current session and forget it locally",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				// The local session is gone either way; a failed server call is only reported.
				if err := a.Auth().Logout(ctx); err != nil {
					_, _ = fmt.Fprintf(cmd.Root().ErrWriter, "Warning: %v\n", err)
				}
				_, err := fmt.Fprintln(cmd.Root().Writer, "Logged out")
				return err
			})
		},
	}
}

func revokeAllCommand() *cli.Command {
	return &cli.Command{
		Name:  "revoke-all",
		Usage: "revoke every token of the current user on all devices",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Auth().RevokeAll(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.Root().Writer, "All sessions revoked")
				return err
			})
		},
	}
}

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "inspect the stored session",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "show who is logged in and when the access token expires",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
						return printSessionStatus(cmd.Root().Writer, a, time.Now())
					})
				},
			},
			{
				Name:  "tokens",
				Usage: "list the user's active tokens as reported by the ERP",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
						tokens, err := a.Accounts().ActiveTokens(ctx)
						if err != nil {
							return err
						}
						enc := json.NewEncoder(cmd.Root().Writer)
						enc.SetIndent("", "  ")
						return enc.Encode(tokens)
					})
				},
			},
		},
	}
}

func printSessionStatus(w io.Writer, a *app.App, now time.Time) error {
	creds := a.Session().Get()
	if !creds.IsAuthenticated {
		_, err := fmt.Fprintln(w, "Not logged in")
		return err
	}

	if u := creds.User; u != nil {
		if _, err := fmt.Fprintf(w, "User:    %s (%s)\n", u.Username, joinRoles(u.Roles)); err != nil {
			return err
		}
	}

	tok, err := a.Session().Token()
	if err != nil {
		return err
	}
	switch {
	case tok.Expiry.IsZero():
		_, err = fmt.Fprintln(w, "Expires: unknown")
	case tok.Expiry.Before(now):
		_, err = fmt.Fprintf(w, "Expires: expired %s ago (refreshed on next request)\n", now.Sub(tok.Expiry).Round(time.Second))
	default:
		_, err = fmt.Fprintf(w, "Expires: in %s\n", tok.Expiry.Sub(now).Round(time.Second))
	}
	return err
}

// promptCredentials reads the username and password from flags, stdin or
// the terminal. Prompts go to prompt so stdout stays clean.
func promptCredentials(cmd *cli.Command, in *os.File, prompt io.Writer) (authservice.Credentials, error) {
	reader := bufio.NewReader(in)
	creds := authservice.Credentials{Username: cmd.String("username")}

	if creds.Username == "" {
		_, _ = fmt.Fprint(prompt, "Username: ")
		line, err := readLine(reader)
		if err != nil {
			return creds, fmt.Errorf("reading username: %w", err)
		}
		creds.Username = line
	}

	switch {
	case cmd.Bool("password-stdin"):
		line, err := readLine(reader)
		if err != nil {
			return creds, fmt.Errorf("reading password: %w", err)
		}
		creds.Password = line
	case term.IsTerminal(int(in.Fd())):
		_, _ = fmt.Fprint(prompt, "Password: ")
		pw, err := term.ReadPassword(int(in.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return creds, fmt.Errorf("reading password: %w", err)
		}
		creds.Password = string(pw)
	default:
		return creds, errors.New("no terminal to prompt for the password, use --password-stdin")
	}

	return creds, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
