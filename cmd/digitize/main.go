package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dreschagin/views-collector/internal/synthetic"
	"github.com/dreschagin/views-collector/pkg/logger"
)

var (
	manifestPath string
	outputPath   string
	mediaIDs     []string
	logLevel     string
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digitize",
		Short: "Generate synthetic cumulative view series from a manifest",
		Long: `Reads a manifest of final view totals and writes a 10-minute
cumulative series per media item, ending exactly at the final total.

Example:
  digitize -m manifest.csv -o series.csv --ids 001,002`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDigitize,
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Manifest CSV path")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "digitize_input_all.csv", "Output CSV path (- for stdout)")
	cmd.Flags().StringSliceVar(&mediaIDs, "ids", nil, "Only generate these media ids (zero-padded, comma separated)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runDigitize(cmd *cobra.Command, _ []string) error {
	log := logger.NewWithWriter(logLevel, cmd.ErrOrStderr())

	in, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer in.Close()

	entries, err := synthetic.ReadManifest(in)
	if err != nil {
		return err
	}

	var ids map[string]struct{}
	if len(mediaIDs) > 0 {
		ids = make(map[string]struct{}, len(mediaIDs))
		for _, id := range mediaIDs {
			ids[synthetic.NormalizeMediaID(id, "")] = struct{}{}
		}
	}

	observations := synthetic.Generate(entries, ids)

	out := cmd.OutOrStdout()
	if outputPath != "-" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := synthetic.WriteCSV(out, observations); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	last := synthetic.LastViews(observations)
	for _, entry := range entries {
		got, ok := last[entry.MediaID]
		if !ok {
			continue
		}
		if got != entry.FinalViews && entry.End.Sub(entry.Upload) >= synthetic.Step {
			log.Warn("Series does not end at manifest total",
				"media_id", entry.MediaID,
				"last_views", got,
				"manifest_final", entry.FinalViews,
			)
		}
	}

	log.Info("Synthetic series written",
		"output", outputPath,
		"media", len(last),
		"rows", len(observations),
		"filter", strings.Join(mediaIDs, ","),
	)
	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "digitize: %v\n", err)
		os.Exit(1)
	}
}
