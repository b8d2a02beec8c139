package commands

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List stored sample counts per label",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, err := openEngine(cmd.Context(), cmd)
		if err != nil {
			return err
		}

		labels := e.Labels()
		if len(labels) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no samples stored")
			return nil
		}
		for _, l := range labels {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", l.Label, l.Count)
		}
		return nil
	},
}

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored dataset as a zip archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		e, _, err := openEngine(ctx, cmd)
		if err != nil {
			return err
		}

		f, err := os.Create(exportOutput)
		if err != nil {
			return errors.Wrapf(err, "create %s failed", exportOutput)
		}
		defer func() {
			if err0 := f.Close(); err0 != nil {
				err = multierr.Append(err, err0)
			}
			if err != nil {
				_ = os.Remove(exportOutput)
			}
		}()

		if err := e.Export(ctx, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "wakeword_dataset.zip", "output zip file")
	rootCmd.AddCommand(labelsCmd, exportCmd)
}
