// Package cmd implements the CLI commands for streviz-engine.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/olbboy/streviz-engine/internal/config"
	"github.com/olbboy/streviz-engine/internal/observability"
	"github.com/olbboy/streviz-engine/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "streviz-engine",
	Short:   "Scheduling and supervision engine for multi-stream media broadcasting",
	Version: version.Short(),
	Long: `streviz-engine is the core scheduling and supervision engine behind a
multi-stream media-broadcasting service.

It admits streams against a capacity model (total count, CPU/NVENC
transcode slots, aggregate bitrate), supervises the FFmpeg processes that
carry them, and plans merges of multiple source files into a single
continuous publish when a stream's playlist spans more than one file.

This binary exposes the engine as an operator CLI for inspecting and
driving those components directly; the public-facing stream management
API is out of scope here.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.streviz/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Bind flags to viper
	mustBindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Set default configuration values before reading config file
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/streviz")
		viper.AddConfigPath(home + "/.streviz")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables
	viper.SetEnvPrefix("STREVIZ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging installs the engine's redacting logger as the slog default.
// Every subcommand logs through it, so credential material in publish URLs
// never reaches log output unmasked.
func initLogging() error {
	logger := observability.NewLogger(config.LoggingConfig{
		Level:  strings.ToLower(viper.GetString("logging.level")),
		Format: strings.ToLower(viper.GetString("logging.format")),
	})
	slog.SetDefault(logger)
	return nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
// This helper ensures lint-compliant error handling for viper.BindPFlag.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}

// loadConfig loads the engine configuration the same way initConfig primed
// viper for, but through the strongly-typed config.Load path so subcommands
// get validation and the ByteSize/Duration unmarshaling config.go provides.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
