// Package daemon assembles the admission-core binary's root cobra
// command: flag parsing, logging setup, and the serve path that wires
// every package in pkg/ into one running pipeline. It mirrors the
// teacher's cmd/root package shape (a root command carrying the
// persistent flags, delegating to small per-concern files).
package daemon

import (
	"cmp"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docker/admission-core/pkg/logging"
)

type rootFlags struct {
	configPath string
	dataDir    string
	debugMode  bool
	logFile    string
	mcpAddr    string
	healthAddr string
}

// NewRootCmd builds the admitcored root command.
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "admitcored",
		Short: "admitcored - request-admission security core",
		Long: `admitcored runs the request-admission security core: the Gate
Pipeline, the Async Auditor, and the Handoff Orchestrator behind an
MCP transport and an HTTP health endpoint.`,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level := slog.LevelInfo
			if flags.debugMode {
				level = slog.LevelDebug
			}
			path := strings.TrimSpace(flags.logFile)
			if _, err := logging.Setup(level, path); err != nil {
				slog.Warn("admitcored: logging setup failed, falling back to stderr", "error", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML configuration document (defaults baked in when empty)")
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", cmp.Or(os.Getenv("ADMITCORED_DATA_DIR"), "./data"), "directory holding the pattern indices and audit database")
	cmd.PersistentFlags().BoolVar(&flags.debugMode, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "rotating log file path (stderr only when empty)")
	cmd.PersistentFlags().StringVar(&flags.mcpAddr, "mcp-http-addr", "", "serve MCP over streamable HTTP at this address instead of stdio (empty = stdio)")
	cmd.PersistentFlags().StringVar(&flags.healthAddr, "health-addr", ":8090", "address for the GET /healthz health endpoint")

	return cmd
}
