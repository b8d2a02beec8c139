// Package commands implements the wakeword command tree.
package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zrma/go-wakeword/engine"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dataDir    string
)

var rootCmd = &cobra.Command{
	Use:   "wakeword",
	Short: "Wake word training and detection from MFCC features",
	Long: `wakeword - Extract MFCC features, store labeled wake word samples and
classify new recordings.

Every command works on the sample store under --data-dir. Each "train"
stores the sample and retrains the classifier once at least two labels have
samples.

Examples:
  # Store samples for two labels, then classify a recording
  wakeword train hey_robot hey1.wav hey2.wav
  wakeword train background noise1.wav noise2.wav
  wakeword detect query.wav

  # Run the HTTP API
  wakeword serve --addr :5000`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "sample store directory (overrides the config file)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func loadConfig(cmd *cobra.Command) (*Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func openEngine(ctx context.Context, cmd *cobra.Command) (*engine.Engine, *Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.New(ctx, cfg.Config, newLogger(cmd))
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}

func readAudio(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s failed", path)
	}
	return data, nil
}
