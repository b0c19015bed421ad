package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"poker-table/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:           "poker-table",
		Short:         "Real-time Texas Hold'em table server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(v), newTokenCmd(v))
	return root
}

func addEnvFileFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "env-file", "", "load environment variables from this file before reading config")
}

func loadConfig(v *viper.Viper, envFile string) (config.Config, error) {
	cfg, err := config.Load(v, envFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
