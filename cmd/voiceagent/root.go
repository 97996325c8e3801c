package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceagent/internal/config"
	"github.com/teslashibe/go-voiceagent/internal/log"
)

var (
	// configPath is the TOML deployment file
	configPath string
	// verbose forces debug logging
	verbose bool

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "voiceagent",
	Short: "Realtime voice agent with provider fallback",
	Long: `voiceagent runs speech-to-speech sessions against Gemini Live or the
OpenAI Realtime API, executes tool calls for the host application and
falls back to the next model when a provider cannot start a session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeApp()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "voiceagent: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $VOICEAGENT_CONFIG or ~/.voiceagent/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// initializeApp loads the configuration and sets up logging.
func initializeApp() error {
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger = log.Init(level, cfg.Logging.Format)
	logger.Debug("configuration loaded", "path", configPath, "listen", cfg.Server.Listen)
	return nil
}
