package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/relay/internal/auth"
	"github.com/memohai/relay/internal/channel/adapters/telegram"
	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Relay: Telegram bridge for the agents service",
		Long:          "Relay normalizes Telegram updates into agent events and delivers agent responses back to chat channels.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default: $CONFIG_PATH or config.toml)")

	root.AddCommand(serveCmd())
	root.AddCommand(transcodeCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns the --config flag, then CONFIG_PATH, then the default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return config.DefaultConfigPath
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and delivery HTTP server",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func transcodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcode [text...]",
		Short: "Print the Telegram MarkdownV2 rendering of text from args or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				_, err := fmt.Fprintln(out, telegram.FormatMarkdownV2(strings.Join(args, " ")))
				return err
			}
			return transcodeStream(cmd.InOrStdin(), out)
		},
	}
}

// transcodeStream converts all of r in one pass so markup may span lines.
func transcodeStream(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	out := telegram.FormatMarkdownV2(string(data))
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	_, err = io.WriteString(w, out)
	return err
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a service token for POST /api/send-response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if ttl <= 0 {
				if ttl, err = cfg.Auth.TokenTTL(); err != nil {
					return err
				}
			}
			token, expiresAt, err := auth.GenerateServiceToken(subject, cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "agents", "token subject (the calling service)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: [auth] jwt_expires_in)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetInfo())
		},
	}
}
