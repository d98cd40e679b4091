// evaluatesegmentation compares a segmentation, a landmark set or a lesion
// detection result against a ground truth and prints the requested metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/segeval/compileinfo"
	"github.com/carbocation/segeval/config"
	"github.com/carbocation/segeval/metric"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type cliFlags struct {
	fs *flag.FlagSet

	cfg       config.Config
	threshold float64

	landmark, lesion bool
	def              bool
	defaultsPath     string
	verbose          bool
}

func newFlags(stderr io.Writer) *cliFlags {
	c := &cliFlags{fs: flag.NewFlagSet("evaluatesegmentation", flag.ContinueOnError)}
	fs := c.fs
	fs.SetOutput(stderr)

	fs.BoolVar(&c.landmark, "loc", false, "Evaluate landmark localization: the two paths are landmark lists (id,x,y,z).")
	fs.BoolVar(&c.lesion, "det", false, "Evaluate lesion detection: the two paths are lesion lists (id,x,y,z[,radius]) or label volumes.")
	fs.Float64Var(&c.threshold, "thd", 0, "(Optional) Before evaluation, convert fuzzy images to binary using this threshold.")
	fs.StringVar(&c.cfg.XMLPath, "xml", "", "(Optional) Path to an XML file where the results should be saved.")
	fs.StringVar(&c.cfg.Unit, "unit", "voxel", "Unit for distances and volumes: millimeter or voxel.")
	fs.StringVar(&c.cfg.Use, "use", metric.BundleAll, "Metrics to compute: all, fast, visceral, or a list such as DICE,HDRFDST@0.95@,FMEASR@0.5@.")
	fs.BoolVar(&c.cfg.NoStreaming, "nostreaming", false, "Read both volumes fully into memory instead of streaming them in slabs.")
	fs.IntVar(&c.cfg.TileVoxels, "tile", 0, "(Optional) Maximum voxels per streamed slab.")
	fs.StringVar(&c.cfg.MaskPath, "mask", "", "(Optional) Lesion detection only: a segmentation restricting the region that is evaluated.")
	fs.Float64Var(&c.cfg.Tolerance, "tolerance", 0, "(Optional) Lesion detection only: center distance within which two lesions match.")
	fs.StringVar(&c.cfg.Averaging, "average", "micro", "Aggregation over the labels of multi-label volumes: micro or macro.")
	fs.StringVar(&c.cfg.LabelMapPath, "labels", "", "(Optional) JSON label config naming labels and decoding colored label images.")
	fs.IntVar(&c.cfg.Workers, "workers", 0, "(Optional) Number of worker goroutines. Defaults to the number of CPUs.")
	fs.BoolVar(&c.def, "def", false, "Read default options from "+config.DefaultFile+" in the current folder. Command line options override them.")
	fs.BoolVar(&c.def, "default", false, "Alias of -def.")
	fs.StringVar(&c.defaultsPath, "defaults", "", "(Optional) Read default options from this file (.txt, .yaml or .json) instead of "+config.DefaultFile+".")
	fs.BoolVar(&c.verbose, "v", false, "Verbose logging.")

	fs.Usage = func() { c.usage() }

	return c
}

func (c *cliFlags) usage() {
	w := c.fs.Output()
	fmt.Fprintf(w, "USAGE:\n\n")
	fmt.Fprintf(w, "1) Segmentation:\n   evaluatesegmentation groundtruthPath segmentPath [-thd threshold] [-xml xmlpath] [-unit millimeter|voxel] [-use all|fast|DICE,JACRD,...]\n")
	fmt.Fprintf(w, "2) Landmark localization:\n   evaluatesegmentation -loc groundtruthLandmarkPath testLandmarkPath [-xml xmlpath]\n")
	fmt.Fprintf(w, "3) Lesion detection:\n   evaluatesegmentation -det groundtruthDetectionPath testDetectionPath [-mask maskpath] [-xml xmlpath]\n\n")
	fmt.Fprintf(w, "Paths may be local files, gs:// objects or http(s) URLs.\n\nOptions:\n")
	c.fs.PrintDefaults()

	fmt.Fprintf(w, "\nMetrics (additional options can be given between two @ characters):\n")
	for _, d := range metric.Default().All() {
		fmt.Fprintf(w, "  %s\t%s\n", d.ID, d.Help)
	}
	fmt.Fprintf(w, "\nExample:\n   evaluatesegmentation groundtruth.nii segment.nii -use RNDIND,HDRFDST@0.96@,FMEASR@0.5@ -xml result.xml\n")
}

// splitArgs separates positional paths from flags so that paths may come
// before, between or after the options.
func splitArgs(fs *flag.FlagSet, args []string) (flags, positional []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") || a == "-" {
			positional = append(positional, a)
			continue
		}
		if a == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			continue
		}
		if i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}

	return flags, positional
}

// parse resolves the effective configuration: defaults, then the defaults
// file if requested, then the options that were given explicitly.
func (c *cliFlags) parse(args []string) (config.Config, error) {
	flags, positional := splitArgs(c.fs, args)
	if err := c.fs.Parse(flags); err != nil {
		return config.Config{}, err
	}

	set := make(map[string]bool)
	c.fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if c.landmark && c.lesion {
		return config.Config{}, fmt.Errorf("-loc and -det are mutually exclusive")
	}
	if len(positional) != 2 {
		return config.Config{}, fmt.Errorf("expected a ground truth path and a test path, got %d paths", len(positional))
	}

	cfg := config.Default()
	if c.def || c.defaultsPath != "" {
		path := c.defaultsPath
		if path == "" {
			path = config.DefaultFile
		}
		var err error
		if cfg, err = config.LoadDefaults(path); err != nil {
			return cfg, err
		}
	}

	cli := c.cfg
	cli.TruthPath, cli.TestPath = positional[0], positional[1]
	cli.Mode = config.ModeSegmentation
	if c.landmark {
		cli.Mode = config.ModeLandmark
	} else if c.lesion {
		cli.Mode = config.ModeLesion
	}
	if set["thd"] {
		v := c.threshold
		cli.Threshold = &v
	}

	cfg = cfg.Override(cli, set)

	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := newFlags(stderr)
	cfg, err := c.parse(args)

	level := zerolog.InfoLevel
	if c.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	if err == flag.ErrHelp {
		return 0
	}
	if err != nil {
		log.Error().Err(err).Msg("invalid arguments")
		c.usage()
		return 1
	}

	start := time.Now()
	log.Debug().Msg("evaluatesegmentation start")
	compileinfo.Log(log)
	defer func() {
		log.Debug().Msgf("evaluatesegmentation end. Took %.2f seconds", time.Since(start).Seconds())
	}()
	if c.def || c.defaultsPath != "" {
		log.Info().Str("use", cfg.Use).Str("xml", cfg.XMLPath).Interface("threshold", cfg.Threshold).Msg("using default options")
	}

	client, err := storageClient(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("could not create a Google Storage client")
		return 1
	}
	if client != nil {
		defer client.Close()
	}

	r := &runner{cfg: cfg, client: client, log: log, start: start, stdout: stdout}
	switch cfg.Mode {
	case config.ModeLandmark:
		err = r.landmarks(ctx)
	case config.ModeLesion:
		err = r.lesions(ctx)
	default:
		err = r.segmentation(ctx)
	}
	if err != nil {
		log.Error().Err(err).Msg("evaluation failed")
		return 1
	}

	return 0
}

// storageClient is only created when a path needs it.
func storageClient(ctx context.Context, cfg config.Config) (*storage.Client, error) {
	for _, p := range []string{cfg.TruthPath, cfg.TestPath, cfg.MaskPath} {
		if strings.HasPrefix(p, "gs://") {
			return storage.NewClient(ctx)
		}
	}
	return nil, nil
}
