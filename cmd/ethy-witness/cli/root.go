package cli

import (
	"github.com/spf13/cobra"
)

const defaultConfigFile = "config.yml"

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:          "ethy-witness",
		Short:        "Cross-chain event proof witness service",
		SilenceUsage: true,
	}
)

func Execute() error {
	rootCmd.AddCommand(StartCmd())
	rootCmd.AddCommand(VerifyCmd())
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigFile, "path to the yaml config file")
	return rootCmd.Execute()
}
