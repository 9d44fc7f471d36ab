package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/keel"
)

func newAddonsCommand(flags *globalFlags, opts []keel.ApplicationOption) *cobra.Command {
	return &cobra.Command{
		Use:   "addons",
		Short: "List addons in load order",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, logger, err := bootApplication(cmd, flags, opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer func() { _ = app.Shutdown(context.WithoutCancel(cmd.Context())) }()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCOMPILED\tDIR")
			for _, l := range app.Addons() {
				fmt.Fprintf(tw, "%s\t%t\t%s\n", l.Name, l.Addon != nil, l.Dir)
			}
			return tw.Flush()
		},
	}
}

func newRoutesCommand(flags *globalFlags, opts []keel.ApplicationOption) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List routes in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, logger, err := bootApplication(cmd, flags, opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer func() { _ = app.Shutdown(context.WithoutCancel(cmd.Context())) }()

			r, err := app.Router()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METHOD\tPATTERN\tACTION")
			for _, route := range r.Routes() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", route.Method, route.Pattern, route.Action)
			}
			return tw.Flush()
		},
	}
}
