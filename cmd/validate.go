package cmd

import (
	"fmt"

	"github.com/agentic-research/taxotree/internal/ingest"
	"github.com/agentic-research/taxotree/internal/tree"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var validateFlags sourceFlags

var validateCmd = &cobra.Command{
	Use:   "validate [source]",
	Short: "Check that every record in source fits the level schema",
	Long: `Validate runs a full build without writing anything. It fails on the
first source that lacks a level column or the first record missing a level
field, and reports which columns or fields are absent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := validateFlags.loadConfig(cmd)
		if err != nil {
			return err
		}
		source, err := absPath(args[0])
		if err != nil {
			return err
		}

		b, err := newEngine(cfg).Build(cmd.Context(), source)
		switch {
		case ingest.IsMissingColumns(err):
			return fmt.Errorf("invalid source: %w", err)
		case tree.IsSchemaMismatch(err):
			return fmt.Errorf("invalid record: %w", err)
		case err != nil:
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "OK: %s records across %d levels\n",
			humanize.Comma(int64(b.Len())), len(cfg.Levels))
		return nil
	},
}

func init() {
	validateFlags.register(validateCmd)
	rootCmd.AddCommand(validateCmd)
}
