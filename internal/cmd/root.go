package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "moor",
	Short: "Moor — remote docker-compose service manager",
	Long: `Moor controls a set of docker-compose service groups: start, stop,
status, ad-hoc commands, and live log streaming to any number of observers,
gated by scoped access keys.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "moor.yml", "config file")
}

func initConfig() {
	viper.SetEnvPrefix("moor")
	viper.AutomaticEnv()

	if v := viper.GetString("config"); cfgFile == "moor.yml" && v != "" {
		cfgFile = v
	}
}
