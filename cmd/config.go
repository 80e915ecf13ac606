package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configOut string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file populated with the current defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configOut); err == nil {
			return eris.Errorf("%s already exists", configOut)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		if err := os.WriteFile(configOut, data, 0644); err != nil {
			return eris.Wrapf(err, "write %s", configOut)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configOut)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configOut, "out", "config.yaml", "destination path")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
