package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"driftwatch/internal/conflict"

	"github.com/spf13/cobra"
)

func newResolveCmd(o *globalOptions) *cobra.Command {
	var (
		strategyName string
		all          bool
	)
	cmd := &cobra.Command{
		Use:   "resolve [path]...",
		Short: "Resolve drifted files with a strategy",
		Long: `Strategies:
  keep-user       accept the current file (or its deletion) as the new baseline
  keep-generated  restore the generated content, re-creating deleted files
  merge           not supported yet; always fails`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("give either paths or --all")
			}
			strategy, err := conflict.ParseStrategy(strategyName)
			if err != nil {
				return err
			}

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

			var results []conflict.Result
			if all {
				results = a.manager.ResolveAllConflicts(ctx, strategy)
			} else {
				paths, err := a.normalizeAll(args)
				if err != nil {
					return err
				}
				for _, p := range paths {
					results = append(results, a.manager.ResolveConflict(ctx, p, strategy))
				}
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "Nothing to resolve.")
				return nil
			}
			if failed := renderResults(out, results); failed > 0 {
				return fmt.Errorf("%d of %d resolution(s) failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&strategyName, "strategy", "s", "keep-user", "keep-user, keep-generated or merge")
	cmd.Flags().BoolVar(&all, "all", false, "Resolve every drifted file")
	return cmd
}

func newAckCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ack <path>...",
		Short: "Acknowledge your edits as the new baseline",
		Args:  cobra.MinimumNArgs(1),
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
			if err := a.manager.AcknowledgeEdits(ctx, paths); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s acknowledged %d file(s)\n", okStyle.Render("✓"), len(paths))
			return nil
		},
	}
}

func newHistoryCmd(o *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past resolutions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context()
			defer cancel()

			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.store.Resolutions(ctx, a.project, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No resolutions recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tPATH\tSTRATEGY\tOUTCOME")
			for _, r := range records {
				outcome := "ok"
				switch {
				case r.Discarded:
					outcome = "discarded"
				case !r.Success:
					outcome = "failed: " + r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ResolvedAt.Local().Format(time.DateTime), r.Path, r.Strategy, outcome)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries (0 for all)")
	return cmd
}
