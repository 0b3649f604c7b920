package main

import (
	"errors"
	"fmt"
	"os"

	"driftwatch/internal/config"
	"driftwatch/internal/conflict"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errDrift makes `check --fail-on-drift` exit non-zero.
var errDrift = errors.New("drift detected")

func newInitCmd(o *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file for this workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(o.configPath); err == nil && !force {
				fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s (use --force to overwrite)\n", o.configPath)
				return nil
			}
			cfg := config.DefaultConfig()
			cfg.ProjectID = o.cfg.ProjectID
			if err := cfg.Save(o.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", o.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func newTrackCmd(o *globalOptions) *cobra.Command {
	var featureID string
	cmd := &cobra.Command{
		Use:   "track <path>...",
		Short: "Record files as freshly generated",
		Long: `Stores the current content of each file as its generated baseline.
Run this right after a generator writes files; later edits show up as drift.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context()
			defer cancel()

			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			paths, err := a.normalizeAll(args)
			if err != nil {
				return err
			}
			for _, p := range paths {
				t, err := a.source.Track(ctx, p, featureID)
				if err != nil {
					return err
				}
				o.logger.Debug("tracked", zap.String("path", p), zap.String("hash", t.OriginalHash))
				fmt.Fprintf(cmd.OutOrStdout(), "tracking %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&featureID, "feature", "", "Feature or generation run the files belong to")
	return cmd
}

func newCheckCmd(o *globalOptions) *cobra.Command {
	var failOnDrift bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "List tracked files that drifted from their generated content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context()
			defer cancel()

			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.detect(ctx); err != nil {
				return err
			}
			s := a.manager.Summary()
			renderSummary(cmd.OutOrStdout(), s, a.manager.Files())
			if failOnDrift && s.HasConflicts() {
				return errDrift
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnDrift, "fail-on-drift", false, "Exit non-zero when any file drifted")
	return cmd
}

func newDiffCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff [path]...",
		Short: "Show line diffs between generated and current content",
		Long:  `Without arguments every drifted file is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context()
			defer cancel()

			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.detect(ctx); err != nil {
				return err
			}

			paths, err := a.normalizeAll(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				for _, f := range a.manager.Files() {
					paths = append(paths, f.Path)
				}
			}

			out := cmd.OutOrStdout()
			for _, p := range paths {
				lines, err := a.manager.Diff(ctx, p)
				switch {
				case errors.Is(err, conflict.ErrNotFound):
					fmt.Fprintf(out, "%s: no drift\n", p)
					continue
				case errors.Is(err, conflict.ErrTooLarge), errors.Is(err, conflict.ErrContentUnavailable):
					fmt.Fprintf(out, "%s: %v\n", p, err)
					continue
				case err != nil:
					return err
				}
				renderDiff(out, p, lines, o.cfg.Diff.ContextLines)
			}
			return nil
		},
	}
}
