package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/imu1984/Time-series-prediction/internal/envconfig"
)

const version = "v0.1.0"

// appendEnvDocs adds the environment variables cmd honors to its usage text.
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI builds the root command. Command output goes to out.
func NewCLI(out io.Writer) *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "tfts",
		Short:         "Time-series forecasting with WaveNet and Informer models",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			slog.SetDefault(envconfig.NewLogger(os.Stderr))
		},
	}
	rootCmd.SetOut(out)

	predictCmd := newPredictCmd()
	configCmd := newConfigCmd()
	inspectCmd := newInspectCmd()
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tfts version %s\n", version)
		},
	}

	envVars := envconfig.AsMap()
	appendEnvDocs(predictCmd, []envconfig.EnvVar{
		envVars["TFTS_DEBUG"],
		envVars["TFTS_SEED"],
		envVars["TFTS_NUM_THREADS"],
		envVars["TFTS_STRICT_HISTORY"],
	})
	appendEnvDocs(inspectCmd, []envconfig.EnvVar{envVars["TFTS_DEBUG"]})

	rootCmd.AddCommand(predictCmd, configCmd, inspectCmd, versionCmd)
	return rootCmd
}
