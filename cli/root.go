// Package cli provides the keel command line. Programs that compile addons
// in build their own binary around NewRootCommand and pass the addons as
// application options.
package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/keel"
	"github.com/GoCodeAlone/keel/config"
	"github.com/GoCodeAlone/keel/logging"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("keel v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

const defaultEnvFile = ".env"

type globalFlags struct {
	configs  []string
	root     string
	envFiles []string
	env      string
}

// NewRootCommand creates the keel command. opts are applied to every
// application the subcommands build, ahead of the flag-derived options.
func NewRootCommand(opts ...keel.ApplicationOption) *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "keel",
		Short: "Keel - an extensible application runtime",
		Long: `Keel discovers addons, composes their namespaces into a container and
serves their routes.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringSliceVarP(&flags.configs, "config", "c", nil, "config files (yaml, toml, json or .env), later files win")
	pf.StringVarP(&flags.root, "root", "r", ".", "project root directory")
	pf.StringSliceVar(&flags.envFiles, "env-file", []string{defaultEnvFile}, "dotenv files loaded into the environment before config")
	pf.StringVarP(&flags.env, "env", "e", "", "environment, overrides the configured one")

	cmd.AddCommand(newServeCommand(flags, opts))
	cmd.AddCommand(newAddonsCommand(flags, opts))
	cmd.AddCommand(newRoutesCommand(flags, opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	})
	return cmd
}

// loadEnv loads the dotenv files. A missing default file is not an error.
func loadEnv(cmd *cobra.Command, files []string) error {
	explicit := cmd.Flags().Changed("env-file")
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// newApplication builds an unbooted application from the flags.
func newApplication(cmd *cobra.Command, flags *globalFlags, opts []keel.ApplicationOption) (*keel.Application, *logging.ZapLogger, error) {
	if err := loadEnv(cmd, flags.envFiles); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(flags.configs...)
	if err != nil {
		return nil, nil, err
	}
	if flags.env != "" {
		cfg.Environment = flags.env
	}
	logger, err := logging.NewZap(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}

	all := append([]keel.ApplicationOption{}, opts...)
	all = append(all,
		keel.WithConfig(cfg),
		keel.WithLogger(logger),
		keel.WithRootDir(flags.root),
		keel.WithEnvironment(cfg.Environment),
	)
	app, err := keel.New(all...)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return app, logger, nil
}

// bootApplication is newApplication followed by Boot.
func bootApplication(cmd *cobra.Command, flags *globalFlags, opts []keel.ApplicationOption) (*keel.Application, *logging.ZapLogger, error) {
	app, logger, err := newApplication(cmd, flags, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := app.Boot(cmd.Context()); err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return app, logger, nil
}
