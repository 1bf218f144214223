package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsFlags sourceFlags

var statsCmd = &cobra.Command{
	Use:   "stats [source]",
	Short: "Print per-level node counts of the tree built from source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := statsFlags.loadConfig(cmd)
		if err != nil {
			return err
		}
		source, err := absPath(args[0])
		if err != nil {
			return err
		}

		b, err := newEngine(cfg).Build(cmd.Context(), source)
		if err != nil {
			return err
		}
		st := b.Stats()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LEVEL\tLENGTH\tNODES\tMISSING")
		for _, ls := range st.Levels {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				ls.Level,
				strconv.FormatFloat(ls.Length, 'f', 4, 64),
				humanize.Comma(int64(ls.Nodes)),
				humanize.Comma(int64(ls.Sentinel)),
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s records, %s nodes, %s leaves\n",
			humanize.Comma(int64(st.Records)),
			humanize.Comma(int64(st.Nodes)),
			humanize.Comma(int64(st.Leaves)),
		)
		return nil
	},
}

func init() {
	statsFlags.register(statsCmd)
	rootCmd.AddCommand(statsCmd)
}
