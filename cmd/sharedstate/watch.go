package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/sharedstate/internal/errors"
	"github.com/vango-dev/sharedstate/pkg/storage"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print changes made by other processes",
		Long: `Print every durable change made by other processes of the origin.

Changes come from the hub when hub.url is configured, and from the file
storage directory otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx, flags, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.notifier == nil {
				return errors.Newf(errors.CategoryCLI, "storage driver %q has no change notifications", e.cfg.Storage.Driver).
					WithSuggestion("Set hub.url, or use the file driver")
			}

			if e.cfg.Hub.URL == "" && e.file != nil {
				go func() {
					if err := e.file.Watch(ctx); err != nil && ctx.Err() == nil {
						e.logger.Error("watch failed", "error", err)
						stop()
					}
				}()
			}

			info(cmd, "Watching origin %s (Ctrl+C to stop)", e.cfg.Origin)
			return watch(ctx, cmd, e, e.notifier.Events())
		},
	}
}

// watch replays events into the runtime and prints the ones it applies.
func watch(ctx context.Context, cmd *cobra.Command, e *env, events <-chan storage.Event) error {
	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !e.rt.Bridge().Apply(ev) {
				continue
			}
			key, _ := e.rt.Persistence().LogicalKey(ev.Key)
			if ev.Removed {
				fmt.Fprintf(out, "- %s\n", key)
				continue
			}
			fmt.Fprintf(out, "%s = %s\n", key, ev.Value)
		}
	}
}
