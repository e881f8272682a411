package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contextflow/contextflow/internal/config"
	"github.com/contextflow/contextflow/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	username   string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "contextflow",
	Short: "ContextFlow - a chat assistant grounded on your own files",
	Long: `ContextFlow answers questions about a user's uploaded files and profile
through a hosted language model, and keeps the conversation, files and
generated tasks in a local SQLite database.

Run "contextflow serve" to start the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		level := cfg.LogLevel
		if verbose {
			level = "DEBUG"
		}
		logger, err = logging.New(level)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the context the next model request would carry",
	Args:  cobra.NoArgs,
	RunE:  runContext,
}

var uploadCmd = &cobra.Command{
	Use:   "upload [path]",
	Short: "Validate a local file and add it to the user's knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one message and print the assistant's reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file (default contextflow.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, cmd := range []*cobra.Command{contextCmd, uploadCmd, askCmd} {
		cmd.Flags().StringVarP(&username, "user", "u", "", "Account the command acts on")
		_ = cmd.MarkFlagRequired("user")
	}

	rootCmd.AddCommand(serveCmd, contextCmd, uploadCmd, askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
