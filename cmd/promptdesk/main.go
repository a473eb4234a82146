// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the promptdesk CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/promptdesk/internal/secrets"
	"github.com/pdiddy/promptdesk/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// secretsDir holds one file per API key.
const secretsDir = ".secrets/"

var (
	// cfg is the resolved configuration, populated before any subcommand runs.
	cfg types.Config

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "promptdesk",
	Short: "Prompt submission desk with stale-response protection",
	Long: `promptdesk sends prompts to a generative AI provider and keeps one UI
state current. Every submission gets a token; only the most recent
submission's result is ever shown, however the responses race.

It also extracts text from PDFs so their contents can be pasted into
prompts, and keeps a history of every outcome for export.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(cfg.Log, os.Stderr)
		slog.SetDefault(logger)

		s, err := secrets.Load(secretsDir)
		if err != nil {
			return err
		}
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", "keys", keys)
		}
		secrets.ResolveAPIKey(&cfg.Prompt, s)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./promptdesk.yaml or ~/.config/promptdesk/promptdesk.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("promptdesk")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "promptdesk"))
		}
	}

	viper.SetEnvPrefix("PROMPTDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
