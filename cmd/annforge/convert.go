package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/mrsinham/annforge/internal/config"
	"github.com/mrsinham/annforge/internal/ledger"
	"github.com/mrsinham/annforge/internal/logging"
	"github.com/mrsinham/annforge/internal/metrics"
	"github.com/mrsinham/annforge/internal/ontology"
	"github.com/mrsinham/annforge/internal/pipeline"
	"github.com/mrsinham/annforge/internal/publish"
)

var (
	// errHelp is returned after --help was printed.
	errHelp = errors.New("help requested")
	// errFailed is returned when the batch ran but reported failures.
	errFailed = errors.New("conversion failed")
)

// convertFlags are the command line overrides of the configuration file.
type convertFlags struct {
	fs *pflag.FlagSet

	configFile string
	saveConfig string
	quiet      bool
	help       bool
	cfg        config.Config
}

func newConvertFlags(stderr io.Writer) *convertFlags {
	f := &convertFlags{fs: pflag.NewFlagSet("convert", pflag.ContinueOnError)}
	fs := f.fs
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }

	fs.StringVar(&f.configFile, "config", "", "Load configuration from YAML file")
	fs.StringVar(&f.saveConfig, "save-config", "", "Save the effective configuration to YAML file")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "Suppress progress output")
	fs.BoolVarP(&f.help, "help", "h", false, "Show help message")

	c := &f.cfg
	fs.StringVar(&c.Inputs.ROITable, "roi-table", "", "ROI table")
	fs.StringVar(&c.Inputs.CellTable, "cell-table", "", "Cell table")
	fs.StringVar(&c.Inputs.GeometryTable, "geometry-table", "", "Source slide geometry table")
	fs.StringVar(&c.Inputs.ImageRoot, "image-root", "", "Directory of re-encoded slides")
	fs.StringVar(&c.Inputs.Ontology, "ontology", "", "Label to code table")
	fs.StringSliceVar(&c.Slides, "slides", nil, "Slide ids to convert")
	fs.StringVar(&c.OutputDir, "output", "", "Output directory")
	fs.StringVar(&c.ErrorLog, "error-log", "", "Error log path")
	fs.StringVar(&c.GraphicType, "graphic-type", "", "RECTANGLE or POINT")
	fs.StringVar(&c.CoordinateType, "coordinate-type", "", "2D or 3D")
	fs.StringVar(&c.Units, "units", "", "Unit kinds to write")
	fs.StringVar(&c.Namespace, "namespace", "", "UID namespace")
	fs.IntVar(&c.SeriesNumber, "series-number", 0, "Series number")
	fs.IntVar(&c.Workers, "workers", 0, "Slides converted in parallel")
	fs.StringVar(&c.Ledger, "ledger", "", "SQLite ledger of completed units")
	fs.BoolVar(&c.Resume, "resume", false, "Skip units recorded in the ledger")
	fs.StringVar(&c.MetricsFile, "metrics-file", "", "Prometheus text file")
	fs.BoolVar(&c.Preview, "preview", false, "Write PNG previews")
	fs.StringVar(&c.FileSetDir, "fileset-dir", "", "DICOM file set directory")
	fs.StringVar(&c.Publish.Driver, "publish", "", "Upload driver: s3 or gcs")
	fs.StringVar(&c.Publish.Bucket, "bucket", "", "Destination bucket")
	fs.StringVar(&c.Publish.Prefix, "prefix", "", "Key prefix")
	fs.StringVar(&c.Publish.Region, "region", "", "S3 region")
	fs.StringVar(&c.Publish.Endpoint, "endpoint", "", "Object store endpoint")
	fs.StringVar(&c.Log.Mode, "log-mode", "", "dev or prod")
	fs.BoolVarP(&c.Log.Verbose, "verbose", "v", false, "Enable debug logging")
	return f
}

// apply copies every flag set on the command line over base.
func (f *convertFlags) apply(base config.Config) config.Config {
	c := f.cfg
	overrides := map[string]func(){
		"roi-table":       func() { base.Inputs.ROITable = c.Inputs.ROITable },
		"cell-table":      func() { base.Inputs.CellTable = c.Inputs.CellTable },
		"geometry-table":  func() { base.Inputs.GeometryTable = c.Inputs.GeometryTable },
		"image-root":      func() { base.Inputs.ImageRoot = c.Inputs.ImageRoot },
		"ontology":        func() { base.Inputs.Ontology = c.Inputs.Ontology },
		"slides":          func() { base.Slides = c.Slides },
		"output":          func() { base.OutputDir = c.OutputDir },
		"error-log":       func() { base.ErrorLog = c.ErrorLog },
		"graphic-type":    func() { base.GraphicType = c.GraphicType },
		"coordinate-type": func() { base.CoordinateType = c.CoordinateType },
		"units":           func() { base.Units = c.Units },
		"namespace":       func() { base.Namespace = c.Namespace },
		"series-number":   func() { base.SeriesNumber = c.SeriesNumber },
		"workers":         func() { base.Workers = c.Workers },
		"ledger":          func() { base.Ledger = c.Ledger },
		"resume":          func() { base.Resume = c.Resume },
		"metrics-file":    func() { base.MetricsFile = c.MetricsFile },
		"preview":         func() { base.Preview = c.Preview },
		"fileset-dir":     func() { base.FileSetDir = c.FileSetDir },
		"publish":         func() { base.Publish.Driver = c.Publish.Driver },
		"bucket":          func() { base.Publish.Bucket = c.Publish.Bucket },
		"prefix":          func() { base.Publish.Prefix = c.Publish.Prefix },
		"region":          func() { base.Publish.Region = c.Publish.Region },
		"endpoint":        func() { base.Publish.Endpoint = c.Publish.Endpoint },
		"log-mode":        func() { base.Log.Mode = c.Log.Mode },
		"verbose":         func() { base.Log.Verbose = c.Log.Verbose },
	}
	f.fs.Visit(func(fl *pflag.Flag) {
		if set, ok := overrides[fl.Name]; ok {
			set()
		}
	})
	return base
}

// loadConfig resolves defaults, the configuration file and the flags.
func loadConfig(args []string, stderr io.Writer) (config.Config, *convertFlags, error) {
	f := newConvertFlags(stderr)
	if err := f.fs.Parse(args); err != nil {
		return config.Config{}, nil, err
	}
	if f.fs.NArg() > 0 {
		return config.Config{}, nil, fmt.Errorf("unexpected arguments: %v", f.fs.Args())
	}
	if f.help {
		return config.Config{}, f, errHelp
	}

	cfg := config.Default()
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return config.Config{}, nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	cfg = f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, f, nil
}

func runConvert(args []string, stdout, stderr io.Writer) error {
	cfg, flags, err := loadConfig(args, stderr)
	if errors.Is(err, errHelp) || errors.Is(err, pflag.ErrHelp) {
		printHelp(stdout)
		return errHelp
	}
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Mode, cfg.Log.Verbose)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	table := ontology.Default()
	if cfg.Inputs.Ontology != "" {
		if table, err = ontology.Load(cfg.Inputs.Ontology); err != nil {
			return fmt.Errorf("loading ontology: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := stdout
	if flags.quiet {
		progress = io.Discard
	}
	opts := []pipeline.Option{
		pipeline.WithProgress(progress),
		pipeline.WithMetrics(metrics.New()),
	}
	if cfg.Ledger != "" {
		l, err := ledger.Open(cfg.Ledger)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer l.Close()
		opts = append(opts, pipeline.WithLedger(l))
	} else if cfg.Resume {
		log.Warn("--resume has no effect without a ledger")
	}
	pub, err := publish.New(ctx, cfg.Publish)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	if pub != nil {
		defer pub.Close()
		opts = append(opts, pipeline.WithPublisher(pub))
	}

	runner, err := pipeline.New(cfg, log, table, nil, opts...)
	if err != nil {
		return err
	}

	if !flags.quiet {
		fmt.Fprintln(stdout, "annforge")
		fmt.Fprintln(stdout, "========")
		if flags.configFile != "" {
			fmt.Fprintf(stdout, "Loading config from %s\n", flags.configFile)
		}
		fmt.Fprintln(stdout)
	}

	report, err := runner.Run(ctx)
	if err != nil && report == nil {
		return err
	}

	if flags.saveConfig != "" {
		if err := config.Save(flags.saveConfig, cfg); err != nil {
			fmt.Fprintf(stderr, "Warning: could not save config: %v\n", err)
		} else if !flags.quiet {
			fmt.Fprintf(stdout, "Configuration saved to %s\n", flags.saveConfig)
		}
	}

	if !flags.quiet {
		printSummary(stdout, cfg, report)
	}
	if err != nil {
		return err
	}
	if report.Failed() {
		return errFailed
	}
	return nil
}

func printSummary(w io.Writer, cfg config.Config, report *pipeline.Report) {
	if report.Failed() {
		fmt.Fprintln(w, "\n✗ Conversion finished with failures")
	} else {
		fmt.Fprintln(w, "\n✓ Conversion complete!")
	}
	fmt.Fprintf(w, "  Slides:        %d\n", len(report.Slides))
	fmt.Fprintf(w, "  Objects:       %d\n", report.Written())
	fmt.Fprintf(w, "  Annotations:   %d\n", report.Annotations())
	fmt.Fprintf(w, "  Failures:      %d\n", report.Failures)
	fmt.Fprintf(w, "  Record errors: %d\n", report.RecordErrors)
	fmt.Fprintf(w, "  Output:        %s\n", cfg.OutputDir)
	if report.Failed() {
		fmt.Fprintf(w, "  Error log:     %s\n", cfg.ErrorLogPath())
	}
	fmt.Fprintf(w, "  Duration:      %s\n", report.Finished.Sub(report.Started).Round(time.Millisecond))
}
