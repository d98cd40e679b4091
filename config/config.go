// Package config holds the options of an evaluation run and loads defaults
// for them from a file. Options given on the command line override defaults.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/carbocation/segeval/grid"
	"github.com/carbocation/segeval/metric"
	"gopkg.in/yaml.v3"
)

// Evaluation modes.
const (
	ModeSegmentation = "segmentation"
	ModeLandmark     = "landmark"
	ModeLesion       = "lesion"
)

// DefaultFile is the defaults file read by -def when no path is given.
const DefaultFile = "default.txt"

type Config struct {
	Mode string `yaml:"mode" json:"mode"`

	TruthPath string `yaml:"truth" json:"truth"`
	TestPath  string `yaml:"test" json:"test"`
	MaskPath  string `yaml:"mask" json:"mask"`
	XMLPath   string `yaml:"xml" json:"xml"`

	// Use is the metric selection expression.
	Use  string `yaml:"use" json:"use"`
	Unit string `yaml:"unit" json:"unit"`

	// Threshold is nil when inputs are not thresholded.
	Threshold *float64 `yaml:"threshold" json:"threshold"`

	NoStreaming bool `yaml:"nostreaming" json:"nostreaming"`
	TileVoxels  int  `yaml:"tileVoxels" json:"tileVoxels"`
	Workers     int  `yaml:"workers" json:"workers"`

	Averaging       string   `yaml:"average" json:"average"`
	LabelMapPath    string   `yaml:"labels" json:"labels"`
	VisceralExclude []string `yaml:"visceralExclude" json:"visceralExclude"`

	// Tolerance is the lesion center matching distance.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
}

func Default() Config {
	return Config{
		Mode:       ModeSegmentation,
		Use:        metric.BundleAll,
		Unit:       grid.Voxel.String(),
		TileVoxels: grid.DefaultTileVoxels,
		Workers:    runtime.NumCPU(),
		Averaging:  metric.Micro.String(),
	}
}

// LoadDefaults reads a defaults file on top of Default(). YAML (.yaml, .yml)
// and JSON (.json) files hold the fields of Config; any other file uses the
// command line token format, e.g. "-use DICE,HDRFDST@0.95@ -thd 0.5", with
// '#' starting a comment line.
func LoadDefaults(path string) (Config, error) {
	cfg := Default()
	path = ExpandHome(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, pfx.Err(err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, pfx.Err(fmt.Errorf("%s: %w", path, err))
		}
	case ".json":
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return cfg, pfx.Err(fmt.Errorf("%s: %w", path, err))
		}
	default:
		if err := cfg.parseTokens(tokenize(data)); err != nil {
			return cfg, pfx.Err(fmt.Errorf("%s: %w", path, err))
		}
	}

	return cfg, nil
}

func tokenize(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.Fields(line)...)
	}
	return out
}

func (c *Config) parseTokens(tokens []string) error {
	for i := 0; i < len(tokens); i++ {
		name := strings.TrimLeft(tokens[i], "-")

		if name == "nostreaming" {
			c.NoStreaming = true
			continue
		}

		if i+1 >= len(tokens) {
			return fmt.Errorf("option %s has no value", tokens[i])
		}
		i++
		if err := c.set(name, tokens[i]); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) set(name, value string) error {
	switch name {
	case "use":
		c.Use = value
	case "unit":
		c.Unit = value
	case "xml":
		c.XMLPath = value
	case "mask":
		c.MaskPath = value
	case "average":
		c.Averaging = value
	case "labels":
		c.LabelMapPath = value
	case "thd":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("-thd: %w", err)
		}
		c.Threshold = &v
	case "workers":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("-workers: %w", err)
		}
		c.Workers = v
	case "tolerance":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("-tolerance: %w", err)
		}
		c.Tolerance = v
	default:
		return fmt.Errorf("unknown option -%s", name)
	}

	return nil
}

// Override copies every field of cli whose flag name is in set. Paths and the
// mode always come from the command line when non-empty.
func (c Config) Override(cli Config, set map[string]bool) Config {
	out := c
	if cli.Mode != "" {
		out.Mode = cli.Mode
	}
	if cli.TruthPath != "" {
		out.TruthPath = cli.TruthPath
	}
	if cli.TestPath != "" {
		out.TestPath = cli.TestPath
	}

	for name := range set {
		switch name {
		case "use":
			out.Use = cli.Use
		case "unit":
			out.Unit = cli.Unit
		case "xml":
			out.XMLPath = cli.XMLPath
		case "mask":
			out.MaskPath = cli.MaskPath
		case "average":
			out.Averaging = cli.Averaging
		case "labels":
			out.LabelMapPath = cli.LabelMapPath
		case "thd":
			out.Threshold = cli.Threshold
		case "workers":
			out.Workers = cli.Workers
		case "tolerance":
			out.Tolerance = cli.Tolerance
		case "nostreaming":
			out.NoStreaming = cli.NoStreaming
		case "tile":
			out.TileVoxels = cli.TileVoxels
		}
	}

	return out
}

// Validate checks the fields that do not need the metric catalog.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeSegmentation, ModeLandmark, ModeLesion:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if _, err := grid.ParseUnit(c.Unit); err != nil {
		return err
	}
	if _, err := metric.ParseAveraging(c.Averaging); err != nil {
		return err
	}
	if c.Threshold != nil && (math.IsNaN(*c.Threshold) || math.IsInf(*c.Threshold, 0)) {
		return fmt.Errorf("threshold must be finite, got %v", *c.Threshold)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.TileVoxels < 0 {
		return fmt.Errorf("tile size must not be negative, got %d", c.TileVoxels)
	}
	if c.Tolerance < 0 || math.IsNaN(c.Tolerance) {
		return fmt.Errorf("tolerance must not be negative, got %v", c.Tolerance)
	}

	return nil
}

// GridOptions translates the run options for the grid adapter.
func (c Config) GridOptions() (grid.Options, error) {
	opts := grid.DefaultOptions()

	unit, err := grid.ParseUnit(c.Unit)
	if err != nil {
		return opts, err
	}
	opts.Unit = unit
	opts.Streaming = !c.NoStreaming
	if c.TileVoxels > 0 {
		opts.TileVoxels = c.TileVoxels
	}
	if c.Workers > 0 {
		opts.Workers = c.Workers
	}
	if c.Threshold != nil {
		opts.Threshold = *c.Threshold
		opts.UseThreshold = true
	}

	return opts, nil
}

// Catalog builds the metric catalog, applying VisceralExclude when given.
func (c Config) Catalog() (*metric.Catalog, error) {
	if len(c.VisceralExclude) == 0 {
		return metric.Default(), nil
	}

	ids := make([]metric.ID, 0, len(c.VisceralExclude))
	for _, v := range c.VisceralExclude {
		ids = append(ids, metric.ID(strings.ToUpper(strings.TrimSpace(v))))
	}

	return metric.NewCatalog(metric.DefaultDescriptors(), metric.WithVisceralExclusions(ids...))
}
