package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train <label> <audio>...",
	Short: "Store labeled samples and retrain the classifier",
	Long: `Store each audio file as a sample of <label>. The classifier is retrained
after every stored sample; the sample name is the file name without its
extension.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, _, err := openEngine(ctx, cmd)
		if err != nil {
			return err
		}

		label := args[0]
		for _, path := range args[1:] {
			data, err := readAudio(path)
			if err != nil {
				return err
			}
			res, err := e.Train(ctx, label, filepath.Base(path), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", res.File, res.Label, res.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}
