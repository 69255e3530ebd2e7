package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jask/canvaspaint/internal/config"
	"github.com/jask/canvaspaint/internal/logging"
	"github.com/jask/canvaspaint/internal/remote"
	"github.com/jask/canvaspaint/internal/secrets"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "canvaspaint",
		Short:         "Paint images onto a shared pixel canvas",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ~/.config/canvaspaint/config.toml)")
	pf.String("base-url", "", "canvas backend URL")
	pf.String("session", "", "session token (overrides the stored one)")
	pf.String("db", "", "run history database")
	pf.String("log-file", "", "log file used while the TUI is open")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("palette", "", "palette TOML file (default: built-in)")
	pf.StringSlice("exclude", nil, "palette ids or names to skip (default 0,5)")
	pf.Int("transparent", 0, "alpha below this is skipped (default 100)")
	pf.Int("white", 0, "pixels with every channel at or above this are skipped (default 250)")

	root.AddCommand(
		newPaintCmd(),
		newChargesCmd(),
		newHistoryCmd(),
		newLoginCmd(),
		newPaletteCmd(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// stderrLogger is used by every command that does not own the terminal.
func stderrLogger(cfg config.Config) (*slog.Logger, error) {
	lvl, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, lvl), nil
}

// account names the stored session: the backend host.
func account(cfg config.Config) string {
	u, err := url.Parse(cfg.Remote.BaseURL)
	if err != nil || u.Host == "" {
		return cfg.Remote.BaseURL
	}
	return u.Host
}

// resolveSession prefers an explicit flag, then $CANVASPAINT_SESSION, then
// the secrets store, then the config file.
func resolveSession(cmd *cobra.Command, cfg config.Config) string {
	if f := cmd.Flags().Lookup("session"); f != nil && f.Changed {
		return strings.TrimSpace(f.Value.String())
	}
	if v := os.Getenv("CANVASPAINT_SESSION"); v != "" {
		return strings.TrimSpace(v)
	}
	if s, err := secrets.FetchSession(account(cfg)); err == nil {
		return s
	}
	return strings.TrimSpace(cfg.Remote.Session)
}

func newClient(cmd *cobra.Command, cfg config.Config, log *slog.Logger) *remote.Client {
	return remote.NewClient(remote.Options{
		BaseURL:    cfg.Remote.BaseURL,
		CanvasPath: cfg.Remote.CanvasPath,
		CookieName: cfg.Remote.CookieName,
		Session:    resolveSession(cmd, cfg),
		UserAgent:  cfg.Remote.UserAgent,
		Timeout:    cfg.Remote.Timeout,
		Logger:     log,
	})
}
