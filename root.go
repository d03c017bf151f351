package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/structured-notes/notes-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagServer     string
	flagJSON       bool
	flagFormat     string
	flagVerbose    bool
	flagQuiet      bool
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// CLIFlags is a snapshot of the global flags taken after Cobra has parsed
// them, so commands never read the package-level variables directly.
type CLIFlags struct {
	ConfigPath string
	Server     string
	Format     string
	Verbose    bool
	Quiet      bool
}

// CLIContext carries everything the root pre-run resolved. It travels in
// the command's context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. A
// missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("BUG: CLIContext not set; PersistentPreRunE did not run")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notes-go",
		Short:   "Structured notes CLI client",
		Long:    "A command-line client for a structured-notes server with a local node cache.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			flags, err := snapshotFlags()
			if err != nil {
				return err
			}

			resolved, err := loadConfig(flags)
			if err != nil {
				return err
			}

			cc := &CLIContext{
				Flags:  flags,
				Cfg:    resolved,
				Logger: buildLogger(resolved, flags, os.Stderr),
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServer, "server", "", "API base URL (e.g., https://notes.example.com/api)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format (same as --format json)")
	cmd.PersistentFlags().StringVar(&flagFormat, "format", formatTable, "output format: table, json, yaml")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newTagsCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newPublicCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newRefreshCmd())

	return cmd
}

// snapshotFlags copies the parsed global flags into a CLIFlags and checks
// the output format.
func snapshotFlags() (CLIFlags, error) {
	format := flagFormat
	if flagJSON {
		format = formatJSON
	}

	switch format {
	case formatTable, formatJSON, formatYAML:
	default:
		return CLIFlags{}, fmt.Errorf("invalid --format %q: must be one of table, json, yaml", format)
	}

	return CLIFlags{
		ConfigPath: flagConfigPath,
		Server:     flagServer,
		Format:     format,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}, nil
}

// loadConfig resolves the effective configuration from the four-layer
// override chain.
func loadConfig(flags CLIFlags) (*config.Resolved, error) {
	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		Server:     flags.Server,
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. The "auto" format
// writes text to a terminal and JSON otherwise.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = cfg.Logging.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
