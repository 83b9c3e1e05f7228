package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ucmodeler/modelstore/pkg/color"
	"github.com/ucmodeler/modelstore/pkg/config"
)

func newConfigCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config <command>",
		Short: "Manage modelstore configuration",
		Long: `Manage modelstore configuration stored in .modelstore.yaml.

Flags and MODELSTORE_* environment variables override the file. The legacy
variables MODEL_VERSION, BACKEND_AUTH_ENABLED and KC_PUBLIC_KEY_URI are also read.

Available commands:
  show              - Show the effective configuration
  init              - Write a default configuration file`,
		DisableFlagsInUseLine: true,
	}
	cmd.AddCommand(newConfigShowCmd(o), newConfigInitCmd(o))
	return cmd
}

func newConfigShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if o.jsonOutput {
				return outputJSON(out, cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Fprintf(out, "# Location: %s\n", o.v.GetString("config"))
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigInitCmd(o *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := o.v.GetString("config")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.Success("Wrote"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
