package cmd

import (
	"strings"

	"github.com/ledgerline/chronicle/internal/config"
	"github.com/ledgerline/chronicle/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "chronicle",
	Short: "Crash-recoverable activity journal versioned in git",
	Long: `Chronicle turns editor file-save events into git-versioned activity
records. Raw events land in a plain-file queue, are folded into per-day
batch documents, and are committed to a self-healing git store that
mirrors to a bare backup replica.

Every stage is crash-recoverable: state lives in files, writes are
atomic replaces, and interrupted work is picked up on the next cycle.`,
	Version: version.String(),
}

// Execute dispatches to the requested subcommand.
func Execute() error {
	// Cobra's own error and usage output is silenced; failures come out
	// through the printer package with color formatting.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Flags shared by every subcommand
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is <user config dir>/chronicle/config.yaml)")
	rootCmd.PersistentFlags().String("root", "", "store root directory (default is ~/.chronicle)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
}

// initConfig wires viper: defaults, then environment, then the config file.
// Precedence among the sources is flag > env > file > default.
func initConfig() {
	config.SetDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CHRONICLE")
	// Nested keys map to env vars with underscores, so log.level becomes
	// CHRONICLE_LOG_LEVEL.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// A missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}
