package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/ledgerbox/internal/config"
	"github.com/roach88/ledgerbox/internal/engine"
	"github.com/roach88/ledgerbox/internal/ir"
	"github.com/roach88/ledgerbox/internal/programs"
	"github.com/roach88/ledgerbox/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string
	ConfigPath string

	// Resolved in PersistentPreRunE.
	Config config.Config
	Logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ledgerbox CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "ledgerbox",
		Short:   "ledgerbox - bounded record stores",
		Version: ir.EngineVersion,
		Long: `ledgerbox hosts fixed-size record stores (a post ledger, a deepfake
classification map and an originality map) behind signed transactions.

Every account is allocated at its full size when initialized; writes that
would overflow it are rejected and logged with an error code.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.resolve(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				_ = opts.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to CUE config file")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewViewCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewAccountsCommand(opts))
	cmd.AddCommand(NewLayoutCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// resolve loads the config file, applies flag overrides and builds the
// logger.
func (o *RootOptions) resolve(stderr io.Writer) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	o.Config = cfg

	level := cfg.Level()
	if o.Verbose {
		level = zapcore.DebugLevel
	}
	o.Logger = newLogger(stderr, level)
	return nil
}

// newLogger builds a console logger writing to w.
func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

// formatter returns an OutputFormatter for the command's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger returns the resolved logger, or a no-op logger when a command runs
// without the root (tests).
func (o *RootOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// database returns the configured database path.
func (o *RootOptions) database() string {
	if o.Database != "" {
		return o.Database
	}
	if o.Config.Database != "" {
		return o.Config.Database
	}
	return config.Default().Database
}

// openEngine opens the database and an engine resumed from its log. The
// returned close function stops the engine and closes the store.
func (o *RootOptions) openEngine(ctx context.Context) (*engine.Engine, func(), error) {
	path := o.database()
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", path), err)
	}

	cfg := o.Config
	if cfg.DefaultPolicy == "" {
		cfg = config.Default()
	}
	eng, err := engine.Open(ctx, st, programs.Default(),
		engine.WithLogger(o.logger()),
		engine.WithDefaultPolicy(cfg.Policy()),
		engine.WithSubscriberBuffer(cfg.SubscriberBuffer),
	)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to open engine", err)
	}

	o.logger().Sugar().Debugw("engine opened",
		"database", path,
		"seq", eng.Clock().Current(),
	)
	return eng, func() {
		eng.Stop()
		st.Close()
	}, nil
}
