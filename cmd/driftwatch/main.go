// Command driftwatch reviews drift between generated files and later edits.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"driftwatch/internal/config"
	"driftwatch/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options shared by every subcommand.
type globalOptions struct {
	configPath string
	workspace  string
	project    string
	verbose    bool
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "driftwatch",
		Short: "Review drift between generated files and your edits",
		Long: `driftwatch remembers the content it generated for each tracked file and
compares it with what is on disk now. Files you changed or deleted are listed
as conflicts; each one is resolved by keeping your version (the baseline
moves to it) or by restoring the generated version.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: <workspace>/"+config.DefaultConfigPath+")")
	root.PersistentFlags().StringVarP(&opts.workspace, "workspace", "w", "", "Workspace directory (default: current)")
	root.PersistentFlags().StringVarP(&opts.project, "project", "p", "", "Project ID (overrides config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Operation timeout")

	root.AddCommand(
		newInitCmd(opts),
		newTrackCmd(opts),
		newCheckCmd(opts),
		newDiffCmd(opts),
		newResolveCmd(opts),
		newAckCmd(opts),
		newHistoryCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// setup loads configuration and initializes logging.
func (o *globalOptions) setup() error {
	ws := o.workspace
	if ws == "" {
		var err error
		if ws, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace: %w", err)
	}

	path := o.configPath
	if path == "" {
		path = filepath.Join(ws, config.DefaultConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	switch {
	case o.workspace != "" || cfg.Workspace == "" || cfg.Workspace == ".":
		cfg.Workspace = ws
	case !filepath.IsAbs(cfg.Workspace):
		cfg.Workspace = filepath.Join(ws, cfg.Workspace)
	}
	if o.project != "" {
		cfg.ProjectID = o.project
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	} else if cfg.Logging.File == "" && os.Getenv("DRIFTWATCH_LOG_LEVEL") == "" {
		// Keep the terminal for command output unless asked otherwise.
		cfg.Logging.Level = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	if err := logging.Initialize(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.cfg = cfg
	o.configPath = path
	o.logger = logging.Get(logging.CategoryCLI).Zap()
	logging.Boot("driftwatch starting: workspace=%s project=%s config=%s", cfg.Workspace, cfg.ProjectID, path)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
