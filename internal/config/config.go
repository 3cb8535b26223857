// Package config holds the run configuration of a conversion batch. Values
// come from Default, are overridden by a YAML file and then by command line
// flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrsinham/annforge/internal/annotation"
	"github.com/mrsinham/annforge/internal/dicom"
	"github.com/mrsinham/annforge/internal/projection"
	"github.com/mrsinham/annforge/internal/publish"
)

// SessionPlaceholder is replaced by the session number in the session series
// description.
const SessionPlaceholder = "{session}"

// maxLO is the maximum length of a DICOM LO value.
const maxLO = 64

// Inputs are the source tables and images of a batch.
type Inputs struct {
	ROITable      string `yaml:"roi_table"`
	CellTable     string `yaml:"cell_table"`
	GeometryTable string `yaml:"geometry_table"`
	ImageRoot     string `yaml:"image_root"`
	Ontology      string `yaml:"ontology"`
}

// SeriesDescriptions are the series descriptions of the three object kinds.
type SeriesDescriptions struct {
	ROIs      string `yaml:"rois"`
	Session   string `yaml:"session"`
	Consensus string `yaml:"consensus"`
}

// ForROIs returns the description of region of interest objects.
func (d SeriesDescriptions) ForROIs() string {
	return d.ROIs
}

// ForSession returns the description of the cell object of a session.
func (d SeriesDescriptions) ForSession(s annotation.Session) string {
	if s.IsConsensus() {
		return d.Consensus
	}
	return strings.ReplaceAll(d.Session, SessionPlaceholder, strconv.Itoa(s.Number()))
}

// LogConfig selects the logger.
type LogConfig struct {
	Mode    string `yaml:"mode"`
	Verbose bool   `yaml:"verbose"`
}

// Config is the complete configuration of a run.
type Config struct {
	Inputs    Inputs   `yaml:"inputs"`
	OutputDir string   `yaml:"output_dir"`
	ErrorLog  string   `yaml:"error_log"`
	Slides    []string `yaml:"slides,omitempty"`

	GraphicType    string `yaml:"graphic_type"`
	CoordinateType string `yaml:"coordinate_type"`
	Units          string `yaml:"units"`
	Workers        int    `yaml:"workers"`
	Namespace      string `yaml:"namespace"`

	ROIFilter    annotation.ROIFilter `yaml:"roi_filter"`
	SeriesNumber int                  `yaml:"series_number"`
	Descriptions SeriesDescriptions   `yaml:"series_descriptions"`
	Device       dicom.DeviceInfo     `yaml:"device"`

	ClinicalTrial *dicom.ClinicalTrial `yaml:"clinical_trial,omitempty"`

	Ledger      string         `yaml:"ledger"`
	Resume      bool           `yaml:"resume"`
	MetricsFile string         `yaml:"metrics_file"`
	Preview     bool           `yaml:"preview"`
	FileSetDir  string         `yaml:"fileset_dir"`
	Publish     publish.Config `yaml:"publish"`
	Log         LogConfig      `yaml:"log"`
}

// Default returns the configuration of the BMDeep conversion.
func Default() Config {
	return Config{
		GraphicType:    "RECTANGLE",
		CoordinateType: "2D",
		Units:          "all",
		Workers:        1,
		Namespace:      "bmdeep",
		SeriesNumber:   33,
		Descriptions: SeriesDescriptions{
			ROIs:      "BMDeep regions of interest",
			Session:   "BMDeep cell annotations, session " + SessionPlaceholder,
			Consensus: "BMDeep cell annotations, consensus",
		},
		Device: dicom.DefaultDevice(),
		Log:    LogConfig{Mode: "dev"},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ErrorLogPath returns the error log location, by default inside the output
// directory.
func (c Config) ErrorLogPath() string {
	if c.ErrorLog != "" {
		return c.ErrorLog
	}
	return filepath.Join(c.OutputDir, "conversion_error_log.csv")
}

// Graphic parses GraphicType.
func (c Config) Graphic() (projection.GraphicType, error) {
	return projection.ParseGraphicType(c.GraphicType)
}

// Coordinates parses CoordinateType.
func (c Config) Coordinates() (projection.CoordinateType, error) {
	return projection.ParseCoordinateType(c.CoordinateType)
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Inputs.CellTable == "" && c.Inputs.ROITable == "" {
		errs = append(errs, fmt.Errorf("inputs: a cell table or a ROI table is required"))
	}
	if c.Inputs.GeometryTable == "" {
		errs = append(errs, fmt.Errorf("inputs: geometry_table is required"))
	}
	if c.Inputs.ImageRoot == "" {
		errs = append(errs, fmt.Errorf("inputs: image_root is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, fmt.Errorf("output_dir is required"))
	}
	if _, err := c.Graphic(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Coordinates(); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.SeriesNumber < 1 {
		errs = append(errs, fmt.Errorf("series_number must be >= 1, got %d", c.SeriesNumber))
	}
	if c.Namespace == "" {
		errs = append(errs, fmt.Errorf("namespace is required"))
	}
	if c.ROIFilter.Width < 0 || c.ROIFilter.Height < 0 || c.ROIFilter.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("roi_filter dimensions must not be negative"))
	}
	if !strings.Contains(c.Descriptions.Session, SessionPlaceholder) {
		errs = append(errs, fmt.Errorf("series_descriptions.session must contain %s", SessionPlaceholder))
	}
	for _, d := range []struct{ name, value string }{
		{"rois", c.Descriptions.ROIs},
		{"session", c.Descriptions.ForSession(annotation.SessionNumber(99))},
		{"consensus", c.Descriptions.Consensus},
	} {
		if d.value == "" || len(d.value) > maxLO {
			errs = append(errs, fmt.Errorf("series_descriptions.%s must have 1 to %d characters", d.name, maxLO))
		}
	}
	if c.Resume && c.Ledger == "" {
		errs = append(errs, fmt.Errorf("resume needs a ledger path"))
	}
	if err := c.Publish.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
