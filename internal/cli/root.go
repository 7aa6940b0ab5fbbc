// Package cli implements the cpsdecode command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cpsdecode/cpsdecode/internal/app"
	"github.com/cpsdecode/cpsdecode/internal/config"
)

// state carries what the persistent flags load into every command.
type state struct {
	getenv     func(string) string
	configPath string
	envFile    string
	verbose    bool
	app        *app.App
}

// Run is the main application logic, extracted for testability.
// It accepts OS dependencies as parameters (context, args, env lookup).
func Run(ctx context.Context, args []string, getenv func(string) string) error {
	root := NewRootCmd(getenv)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCmd creates and returns the root command for the CLI.
func NewRootCmd(getenv func(string) string) *cobra.Command {
	st := &state{getenv: getenv}

	rootCmd := &cobra.Command{
		Use:           "cpsdecode",
		Short:         "Decode CPS fixed-width extracts using their record layouts",
		Long:          "Parses CPS record layout documents into schemas, resolves the schema in force for each survey month and decodes fixed-width extracts into tables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.load(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if st.app != nil {
				return st.app.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&st.configPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&st.envFile, "env-file", ".env", "dotenv file loaded before CPSDECODE_ variables are read")
	rootCmd.PersistentFlags().BoolVarP(&st.verbose, "verbose", "v", false, "increase logging verbosity")

	registerLayoutsCmd(rootCmd, st)
	rootCmd.AddCommand(newResolveCmd(st))
	rootCmd.AddCommand(newDecodeCmd(st))
	rootCmd.AddCommand(newBatchCmd(st))
	rootCmd.AddCommand(newSubsetCmd(st))
	rootCmd.AddCommand(newCatalogCmd(st))

	return rootCmd
}

// load reads configuration from file, .env and environment, in that order,
// then configures logging and the application.
func (st *state) load(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()
	if st.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(st.configPath); err != nil {
			return err
		}
	}
	if st.envFile != "" {
		if err := config.LoadDotEnv(st.envFile); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg, st.getenv)

	if err := configureLogging(cfg.Log, st.verbose, cmd.ErrOrStderr()); err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	st.app = a
	return nil
}

// open returns the application with storage and catalog initialized.
func (st *state) open(cmd *cobra.Command) (*app.App, error) {
	if st.app == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	if err := st.app.Open(cmd.Context()); err != nil {
		return nil, err
	}
	return st.app, nil
}
