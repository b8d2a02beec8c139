package commands

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zrma/go-wakeword/engine"
)

// Config is the CLI configuration file. Engine settings sit at the top level
// next to the server address:
//
//	addr: ":5000"
//	data_dir: wakeword_data
//	mfcc:
//	  frame_duration: 25ms
//	  num_coefficients: 13
//	decode:
//	  target_sample_rate: 16000
//	  ffmpeg_path: ffmpeg
//	train:
//	  lambda: 0.01
type Config struct {
	Addr          string `yaml:"addr"`
	engine.Config `yaml:",inline"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Addr:   ":5000",
		Config: engine.DefaultConfig(),
	}
}

// LoadConfig reads a YAML file over DefaultConfig. An empty path returns the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s failed", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s failed", path)
	}
	return &cfg, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "marshal config failed")
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
