// Package main provides sessionctl, a command line client for the session service.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/session-service/pkg/client"
	"github.com/spec-kit/session-service/pkg/identity"
)

type globalOptions struct {
	baseURL  string
	timeout  time.Duration
	insecure bool
	verbose  bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "sessionctl",
		Short: "Talk to the session service",
		Long: `Command line client for the session service.

Examples:
  sessionctl register --name Ada --username ada --email a@x.com --password secret1
  sessionctl login --email a@x.com --password secret1
  sessionctl decode eyJhbGciOi...
  sessionctl smoke --url https://localhost:8443 --insecure
`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("SESSIONCTL_URL", "http://localhost:8080"), "Session service base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "Overall command timeout")
	cmd.PersistentFlags().BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log client activity")

	cmd.AddCommand(registerCmd(opts), loginCmd(opts), decodeCmd(), smokeCmd(opts))
	return cmd
}

func registerCmd(opts *globalOptions) *cobra.Command {
	var params client.RegisterParams

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and print its access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(ctx context.Context, c *client.Client) error {
				view, err := c.Register(ctx, params)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sessionOutput{AccessToken: c.AccessToken(), User: view})
			})
		},
	}

	cmd.Flags().StringVar(&params.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&params.Username, "username", "", "Unique username")
	cmd.Flags().StringVar(&params.Email, "email", "", "Unique email")
	cmd.Flags().StringVar(&params.Password, "password", "", "Password")
	cmd.Flags().StringVar(&params.Role, "role", "", "creator or consumer (default consumer)")
	return cmd
}

func loginCmd(opts *globalOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(ctx context.Context, c *client.Client) error {
				view, err := c.Login(ctx, email, password)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sessionOutput{AccessToken: c.AccessToken(), User: view})
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	return cmd
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [token|-]",
		Short: "Show the identity embedded in an access token without verifying it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 && args[0] != "-" {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read token: %w", err)
				}
				token = line
			}

			view, err := identity.NewDeriver(nil).Decode(strings.TrimSpace(token))
			if err != nil {
				return fmt.Errorf("decode token: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func smokeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "smoke",
		Short: "Run a register, login, refresh and logout round against the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(ctx context.Context, c *client.Client) error {
				return runSmoke(ctx, cmd.OutOrStdout(), c, strings.HasPrefix(opts.baseURL, "https://"))
			})
		},
	}
}

func runSmoke(ctx context.Context, out io.Writer, c *client.Client, secure bool) error {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	params := client.RegisterParams{
		Name:     "Smoke " + suffix,
		Username: "smoke_" + suffix,
		Email:    "smoke+" + suffix + "@example.com",
		Password: "smoke-" + suffix,
	}

	step := func(name string, fn func() error) error {
		fmt.Fprintf(out, "%-10s ", name)
		if err := fn(); err != nil {
			fmt.Fprintln(out, "FAILED")
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintln(out, "OK")
		return nil
	}

	var registered identity.View
	if err := step("register", func() error {
		view, err := c.Register(ctx, params)
		if err != nil {
			return err
		}
		if view.Role != identity.RoleConsumer {
			return fmt.Errorf("expected role %q, got %q", identity.RoleConsumer, view.Role)
		}
		registered = view
		return nil
	}); err != nil {
		return err
	}

	if err := step("login", func() error {
		view, err := c.Login(ctx, params.Email, params.Password)
		if err != nil {
			return err
		}
		if view.ID != registered.ID || view.Username != registered.Username {
			return fmt.Errorf("login identity %s/%s differs from registered %s/%s", view.ID, view.Username, registered.ID, registered.Username)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := step("bad-login", func() error {
		_, err := c.Login(ctx, params.Email, params.Password+"x")
		if client.StatusOf(err) != http.StatusUnauthorized {
			return fmt.Errorf("expected 401, got %v", err)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := step("me", func() error {
		if _, err := c.Login(ctx, params.Email, params.Password); err != nil {
			return err
		}
		me, err := c.Me(ctx)
		if err != nil {
			return err
		}
		if me.Username != params.Username {
			return fmt.Errorf("me returned %q", me.Username)
		}
		return nil
	}); err != nil {
		return err
	}

	// Cookie jars only send Secure cookies over TLS.
	if secure {
		if err := step("refresh", func() error {
			_, err := c.Refresh(ctx)
			return err
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%-10s SKIPPED (needs https)\n", "refresh")
	}

	return step("logout", func() error {
		return c.Logout(ctx)
	})
}

type sessionOutput struct {
	AccessToken string        `json:"accessToken"`
	User        identity.View `json:"user"`
}

func withClient(opts *globalOptions, fn func(context.Context, *client.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zap.NewNop()
	if opts.verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = dev
		defer logger.Sync() //nolint:errcheck
	}

	hc := &http.Client{Timeout: opts.timeout}
	if opts.insecure {
		hc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}

	c, err := client.New(opts.baseURL, client.WithHTTPClient(hc), client.WithLogger(logger))
	if err != nil {
		return err
	}
	return fn(ctx, c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
