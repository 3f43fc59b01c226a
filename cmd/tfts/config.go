package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imu1984/Time-series-prediction/forecast"
	"github.com/imu1984/Time-series-prediction/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config MODEL",
		Short: "Print or save the default configuration of a model",
		Long: "Print the default configuration of MODEL, or write it to a file with --output.\n" +
			"Available models: wavenet, informer.",
		Args: cobra.ExactArgs(1),
		RunE: configHandler,
	}
	cmd.Flags().StringP("output", "o", "", "Write the configuration to a .json, .yaml or .yml file")
	cmd.Flags().String("format", "yaml", "Output format when printing (json or yaml)")
	return cmd
}

func configHandler(cmd *cobra.Command, args []string) error {
	cfg, err := forecast.AutoConfig(args[0])
	if err != nil {
		return err
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := forecast.SaveConfig(output, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
		return nil
	}

	format, _ := cmd.Flags().GetString("format")
	data, err := config.Marshal(cfg, config.Format(format))
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
