package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"driftwatch/internal/conflict"
	"driftwatch/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-check for drift whenever workspace files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, o, cmd)
		},
	}
}

// errWatchDisabled is returned when watch.enabled is false in config.
var errWatchDisabled = errors.New("watching is disabled (set watch.enabled: true in the config)")

// runWatch blocks until ctx is cancelled.
func runWatch(ctx context.Context, o *globalOptions, cmd *cobra.Command) error {
	if !o.cfg.Watch.Enabled {
		return errWatchDisabled
	}
	a, err := o.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if err := a.detect(ctx); err != nil {
		return err
	}
	renderSummary(out, a.manager.Summary(), a.manager.Files())

	events := a.manager.Subscribe()
	go func() {
		for ev := range events {
			if ev.Kind == conflict.EventDetected && len(ev.Paths) > 0 {
				o.logger.Info("drift detected", zap.Strings("paths", ev.Paths), zap.Uint64("seq", ev.Sequence))
			}
		}
	}()

	w, err := watch.NewWatcher(a.source.Root(), watch.Options{
		Debounce: o.cfg.GetDebounce(),
		Ignore:   o.cfg.Watch.Ignore,
		OnChange: func(ctx context.Context, paths []string) error {
			o.logger.Debug("workspace changed", zap.Strings("paths", paths))
			if err := a.detect(ctx); err != nil {
				return err
			}
			renderSummary(out, a.manager.Summary(), a.manager.Files())
			return nil
		},
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", a.source.Root())

	<-ctx.Done()
	w.Stop()
	stats := w.GetStats()
	o.logger.Info("watch finished",
		zap.Int("events", stats.Events),
		zap.Int("batches", stats.Batches),
		zap.Int("errors", stats.Errors),
		zap.Uint64("dropped_events", a.manager.DroppedEvents()))
	return nil
}
