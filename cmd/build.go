package cmd

import (
	"fmt"
	"time"

	"github.com/agentic-research/taxotree/internal/ingest"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	buildFlags  sourceFlags
	buildFormat string
	buildIndent int
)

var buildCmd = &cobra.Command{
	Use:   "build [source] [output]",
	Short: "Build a taxonomy tree from a source file or directory",
	Long: `Build reads every record under source and writes the tree to output.

The output format follows --format, or the output extension when it is
"auto": .nwk/.newick/.tre/.tree write Newick, .db/.sqlite/.sqlite3 write a
SQLite node table, anything else writes nested JSON. SQLite output is added
to an existing database as a new build. The output path and dot-files are
never read as sources, so output may live inside the source directory.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildFlags.loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("format") {
			cfg.Output.Format = buildFormat
		}
		if cmd.Flags().Changed("indent") {
			cfg.Output.Indent = buildIndent
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		source, err := absPath(args[0])
		if err != nil {
			return err
		}
		output, err := absPath(args[1])
		if err != nil {
			return err
		}

		start := time.Now()
		engine := newEngine(cfg)
		engine.Exclude = []string{output}
		b, err := engine.Build(cmd.Context(), source)
		if err != nil {
			return err
		}
		format := ingest.FormatFor(output, cfg.Output.Format)
		if err := engine.Export(b, output, format, cfg.Output.Indent); err != nil {
			return err
		}

		st := b.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s): %s nodes, %s leaves from %s records in %v.\n",
			args[1], format,
			humanize.Comma(int64(st.Nodes)),
			humanize.Comma(int64(st.Leaves)),
			humanize.Comma(int64(st.Records)),
			time.Since(start).Round(time.Millisecond),
		)
		return nil
	},
}

func init() {
	buildFlags.register(buildCmd)
	buildCmd.Flags().StringVarP(&buildFormat, "format", "f", "auto", "Output format: auto, json, newick or sqlite")
	buildCmd.Flags().IntVar(&buildIndent, "indent", 4, "JSON indent width")
	rootCmd.AddCommand(buildCmd)
}
