package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zrma/go-wakeword/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API until interrupted.

Routes:
  POST /upload                     MFCC features and nearest template
  POST /train_wakeword             store a labeled sample and retrain
  POST /detect_wakeword            classify a recording
  GET  /list_wakewords             sample count per label
  GET  /download_wakeword_dataset  zip archive of the stored samples`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, cfg, err := openEngine(ctx, cmd)
		if err != nil {
			return err
		}
		addr := cfg.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		return server.New(addr, e, newLogger(cmd)).ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides the config file)")
	rootCmd.AddCommand(serveCmd)
}
