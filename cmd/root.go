package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"StudyBoard/internal/config"
	boardnet "StudyBoard/internal/net"
	"StudyBoard/internal/syncer"
)

var (
	version    string
	configPath string
	logLevel   string
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "studyboard",
	Short: "Shared whiteboard for study rooms",
	Long: `studyboard - a collaborative whiteboard for study rooms.

Run "studyboard serve" on one machine and share the printed link; other
participants "studyboard join" it. Strokes are broadcast live and persisted
on the server in debounced batches.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// loadConfig reads the config file and applies the global flags. Clients get
// a text logger on stderr, the server a JSON one.
func loadConfig(jsonLogs bool) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		if _, ok := config.ParseLevel(logLevel); !ok {
			return nil, nil, fmt.Errorf("unknown log level %q", logLevel)
		}
		cfg.LogLevel = logLevel
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel, jsonLogs)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// ensureUserID gives this installation a stable random user id on first use.
func ensureUserID(cfg *config.Config) error {
	if cfg.UserID != "" {
		return nil
	}
	cfg.UserID = uuid.NewString()
	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("save user id: %w", err)
	}
	return nil
}

// target resolves a session argument, either a bare session id or a
// studyboard:// share link, to a backend URL and session id.
func target(cfg *config.Config, arg string) (baseURL, sessionID string, err error) {
	if strings.HasPrefix(arg, boardnet.LinkScheme+"://") {
		return boardnet.ParseShareLink(arg)
	}
	if arg == "" {
		return "", "", fmt.Errorf("session id is required")
	}
	return cfg.BackendURL, arg, nil
}

func newBackend(cfg *config.Config, baseURL string) (*syncer.HTTPBackend, error) {
	return syncer.NewHTTPBackend(baseURL, syncer.StaticIdentity{ID: cfg.UserID, BearerToken: cfg.Token}, nil)
}
