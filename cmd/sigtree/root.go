package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hupe1980/sigtree"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type globalFlags struct {
	config   string
	logLevel string
	logJSON  bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "sigtree",
		Short: "Build and validate signature-annotated spatial indexes",
		Long: `sigtree builds an R-tree whose nodes carry approximate-membership
signatures of the "@key:value" tokens below them, and validates the result
against the store and a full-text oracle.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if g.config == "" {
				return nil
			}
			return applyConfig(cmd, g.config)
		},
	}

	root.PersistentFlags().StringVar(&g.config, "config", "", "YAML file with flag defaults (keys are long flag names)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&g.logJSON, "log-json", false, "emit JSON logs")

	root.AddCommand(
		newBuildCmd(g),
		newImportCmd(g),
		newSchemesCmd(),
	)
	return root
}

func (g *globalFlags) logger(cmd *cobra.Command) (*sigtree.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", g.logLevel)
	}
	if g.logJSON {
		return sigtree.NewJSONLogger(cmd.ErrOrStderr(), level), nil
	}
	return sigtree.NewTextLogger(cmd.ErrOrStderr(), level), nil
}

// applyConfig sets every flag not given on the command line from the YAML
// file at path. Unknown keys are ignored. Values from the file satisfy
// required flags.
func applyConfig(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for name, v := range values {
		f := cmd.Flags().Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		// Set through the flag set so the flag counts as Changed for the
		// required flag checks.
		if err := cmd.Flags().Set(name, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("config %s: key %q: %w", path, name, err)
		}
	}
	return nil
}
