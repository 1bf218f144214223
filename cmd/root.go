package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-research/taxotree/internal/config"
	"github.com/agentic-research/taxotree/internal/ingest"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taxotree",
	Short: "Build weighted taxonomy trees from tabular records",
	Long: `taxotree folds taxonomy records (kingdom, phylum, ... species) into a
prefix tree. Each node carries a branch length that shrinks with depth, and
missing values collapse into a single sentinel node per parent.

Records are read from CSV/TSV, JSON or SQLite. Trees are written as nested
JSON, Newick or a SQLite node table.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to an HCL config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// sourceFlags are shared by every command that reads records.
type sourceFlags struct {
	levels         []string
	lengthConstant float64
	sentinel       string
	table          string
	selector       string
	delimiter      string
	workers        int
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.levels, "levels", nil, "Ordered level columns (default kingdom..species)")
	cmd.Flags().Float64Var(&f.lengthConstant, "length-constant", 0, "Branch length numerator C; level i gets C/(i+1)")
	cmd.Flags().StringVar(&f.sentinel, "sentinel", "", "Label for missing values")
	cmd.Flags().StringVar(&f.table, "table", "", "SQLite table holding the records")
	cmd.Flags().StringVar(&f.selector, "selector", "", "JSONPath selecting the record objects of a JSON source")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV field separator (default by extension)")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Build top-level subtrees concurrently with this many workers")
}

// loadConfig reads --config (or the defaults) and applies the flags the
// user set explicitly on top.
func (f *sourceFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("levels") {
		cfg.Levels = f.levels
	}
	if flags.Changed("length-constant") {
		cfg.LengthConstant = f.lengthConstant
	}
	if flags.Changed("sentinel") {
		cfg.Sentinel = f.sentinel
	}
	if flags.Changed("table") {
		cfg.Source.Table = f.table
	}
	if flags.Changed("selector") {
		cfg.Source.Selector = f.selector
	}
	if flags.Changed("delimiter") {
		cfg.Source.Delimiter = f.delimiter
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	return cfg, cfg.Validate()
}

// newEngine wires an ingest engine rooted at the host filesystem root, so
// source and output paths resolve the way the shell does.
func newEngine(cfg *config.Config) *ingest.Engine {
	engine := ingest.NewEngine(cfg.Schema(), osfs.New("/"))
	engine.Log = logger
	engine.Table = cfg.Source.Table
	engine.Selector = cfg.Source.Selector
	engine.Workers = cfg.Workers
	for _, r := range cfg.Source.Delimiter {
		engine.Delimiter = r
	}
	return engine
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return filepath.ToSlash(abs), nil
}
