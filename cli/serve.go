package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/keel"
	"github.com/GoCodeAlone/keel/addon"
)

func newServeCommand(flags *globalFlags, opts []keel.ApplicationOption) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Boot the application and serve HTTP",
		Long: `Boot the application and serve HTTP until interrupted.

With --watch, changes to addon manifests and config files clear the
container cache so the next lookup reads them again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			app, logger, err := bootApplication(cmd, flags, opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if watch {
				w, err := addon.NewWatcher(app.WatchDirs(), logger)
				if err != nil {
					return err
				}
				defer w.Close()
				go func() {
					err := w.Run(ctx, func(path string) {
						if err := app.Reload(ctx, path); err != nil {
							logger.Error("Reload failed", "path", path, "error", err)
						}
					})
					if err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("Watcher stopped", "error", err)
					}
				}()
			}
			return app.Run(ctx)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "clear the container cache when config files change")
	return cmd
}
