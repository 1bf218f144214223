package cmd

import (
	"fmt"

	"github.com/agentic-research/taxotree/internal/ingest"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rowsBuild string

var rowsCmd = &cobra.Command{
	Use:   "rows [tree.db] [label...]",
	Short: "List the input records under a node of a stored tree",
	Long: `Rows looks up the node named by the labels, from the top level down, in
a tree written with "build ... tree.db" and prints the ordinals of the input
records that pass through it, one per line.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tdb, err := ingest.OpenTreeDB(ctx, args[0])
		if err != nil {
			return err
		}
		defer func() { _ = tdb.Close() }()

		build := rowsBuild
		if build == "" {
			if build, err = tdb.LatestBuild(ctx); err != nil {
				return err
			}
		}
		id, err := tdb.Lookup(ctx, build, args[1:])
		if err != nil {
			return err
		}
		rows, err := tdb.Rows(ctx, id)
		if err != nil {
			return err
		}

		logger.Debug("resolved node", zap.String("build", build), zap.Int64("id", id), zap.Int("rows", len(rows)))
		out := cmd.OutOrStdout()
		for _, r := range rows {
			fmt.Fprintln(out, r)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s records\n", humanize.Comma(int64(len(rows))))
		return nil
	},
}

func init() {
	rowsCmd.Flags().StringVar(&rowsBuild, "build", "", "Build id to read (default: the latest)")
	rootCmd.AddCommand(rowsCmd)
}
