package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var extractJSON bool

var extractCmd = &cobra.Command{
	Use:   "extract <audio>",
	Short: "Print MFCC features of an audio file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, _, err := openEngine(ctx, cmd)
		if err != nil {
			return err
		}
		data, err := readAudio(args[0])
		if err != nil {
			return err
		}

		a, err := e.Analyze(ctx, data)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if extractJSON {
			enc := json.NewEncoder(out)
			if err := enc.Encode(a.Features); err != nil {
				return errors.Wrap(err, "encode features failed")
			}
			return nil
		}
		frames, coefficients := a.Features.Shape()
		fmt.Fprintf(out, "sample_rate:  %d\n", a.SampleRate)
		fmt.Fprintf(out, "duration:     %s\n", a.Duration)
		fmt.Fprintf(out, "frames:       %d\n", frames)
		fmt.Fprintf(out, "coefficients: %d\n", coefficients)
		if IsVerbose() {
			for i, row := range a.Features.Rows() {
				fmt.Fprintf(out, "%4d %v\n", i, row)
			}
		}
		return nil
	},
}

var matchCmd = &cobra.Command{
	Use:   "match <audio>",
	Short: "Find the nearest stored template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, _, err := openEngine(ctx, cmd)
		if err != nil {
			return err
		}
		data, err := readAudio(args[0])
		if err != nil {
			return err
		}

		a, err := e.Analyze(ctx, data)
		if err != nil {
			return err
		}
		if a.Command == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "no templates stored")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.4f\n", a.Command, a.Distance)
		return nil
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect <audio>",
	Short: "Classify an audio file with the trained model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, _, err := openEngine(ctx, cmd)
		if err != nil {
			return err
		}
		data, err := readAudio(args[0])
		if err != nil {
			return err
		}

		p, err := e.Detect(ctx, data)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\t%.4f\n", p.Label, p.Confidence)
		if IsVerbose() {
			for i, label := range p.Labels {
				fmt.Fprintf(out, "  %s\t%.4f\n", label, p.Probabilities[i])
			}
		}
		return nil
	},
}

var locateCmd = &cobra.Command{
	Use:   "locate <recording> <template>",
	Short: "Find where a template clip occurs inside a recording",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, _, err := openEngine(ctx, cmd)
		if err != nil {
			return err
		}
		recording, err := readAudio(args[0])
		if err != nil {
			return err
		}
		template, err := readAudio(args[1])
		if err != nil {
			return err
		}

		loc, err := e.Locate(ctx, recording, template)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "frame:    %d\noffset:   %s\ndistance: %.4f\n", loc.Frame, loc.Offset, loc.Distance)
		return nil
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print the feature matrix as JSON")
	rootCmd.AddCommand(extractCmd, matchCmd, detectCmd, locateCmd)
}
