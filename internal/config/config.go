// Package config loads build settings from an HCL file.
package config

import (
	"fmt"
	"slices"

	"github.com/agentic-research/taxotree/api"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Output formats.
const (
	FormatAuto   = "auto"
	FormatJSON   = "json"
	FormatNewick = "newick"
	FormatSQLite = "sqlite"
)

var formats = []string{FormatAuto, FormatJSON, FormatNewick, FormatSQLite}

// Config holds everything a build needs besides the input path.
type Config struct {
	Levels         []string `hcl:"levels,optional"`
	LengthConstant float64  `hcl:"length_constant,optional"`
	Sentinel       string   `hcl:"sentinel,optional"`
	// Workers > 1 builds top-level subtrees concurrently.
	Workers int `hcl:"workers,optional"`

	Source *Source `hcl:"source,block"`
	Output *Output `hcl:"output,block"`
}

// Source configures record readers.
type Source struct {
	Table     string `hcl:"table,optional"`     // SQLite table
	Selector  string `hcl:"selector,optional"`  // JSONPath to the row objects
	Delimiter string `hcl:"delimiter,optional"` // CSV field separator; empty picks by extension
}

// Output configures writers.
type Output struct {
	Format string `hcl:"format,optional"`
	Indent int    `hcl:"indent,optional"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// Load decodes an HCL (or HCL-JSON) file. Unset values take defaults.
func Load(path string) (*Config, error) {
	var c Config
	if err := hclsimple.DecodeFile(path, nil, &c); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}

// Parse decodes config source held in memory. filename picks the syntax
// (.hcl or .json) and appears in diagnostics.
func Parse(filename string, src []byte) (*Config, error) {
	var c Config
	if err := hclsimple.Decode(filename, src, nil, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filename, err)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if len(c.Levels) == 0 {
		c.Levels = slices.Clone(api.DefaultLevels)
	}
	if c.LengthConstant == 0 {
		c.LengthConstant = api.DefaultLengthConstant
	}
	if c.Sentinel == "" {
		c.Sentinel = api.DefaultSentinel
	}
	if c.Source == nil {
		c.Source = &Source{}
	}
	if c.Source.Table == "" {
		c.Source.Table = "taxonomy"
	}
	if c.Source.Selector == "" {
		c.Source.Selector = "$[*]"
	}
	if c.Output == nil {
		c.Output = &Output{}
	}
	if c.Output.Format == "" {
		c.Output.Format = FormatAuto
	}
	if c.Output.Indent == 0 {
		c.Output.Indent = 4
	}
}

// Validate checks values that the builder and writers do not check themselves.
func (c *Config) Validate() error {
	if !slices.Contains(formats, c.Output.Format) {
		return fmt.Errorf("unknown output format %q (want one of %v)", c.Output.Format, formats)
	}
	if c.Output.Indent < 0 {
		return fmt.Errorf("indent must not be negative, got %d", c.Output.Indent)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if len([]rune(c.Source.Delimiter)) > 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Source.Delimiter)
	}
	return nil
}

// Schema returns the level schema part of the config.
func (c *Config) Schema() api.Schema {
	return api.Schema{
		Levels:         slices.Clone(c.Levels),
		LengthConstant: c.LengthConstant,
		Sentinel:       c.Sentinel,
	}
}
