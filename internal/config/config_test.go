package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrsinham/annforge/internal/annotation"
	"github.com/mrsinham/annforge/internal/projection"
)

func validConfig() Config {
	cfg := Default()
	cfg.Inputs = Inputs{
		CellTable:     "cells.csv",
		ROITable:      "rois.csv",
		GeometryTable: "geometry.csv",
		ImageRoot:     "images",
	}
	cfg.OutputDir = "out"
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	content := `
inputs:
  roi_table: data/rois.csv
  cell_table: data/cells.csv
  geometry_table: data/geometry.csv
  image_root: /data/dicom
output_dir: /data/ann
graphic_type: POINT
coordinate_type: 3D
units: sessions,consensus
workers: 4
roi_filter:
  width: 1000
  height: 1000
device:
  manufacturer: "Test Lab"
  model: "converter"
  software_versions: "1.2.0"
  serial: "abc123"
clinical_trial:
  sponsor: "Sponsor"
  protocol_id: "BMDEEP"
  other_protocol_id: "10.1234/bmdeep"
  other_protocol_issuer: "DOI"
publish:
  driver: s3
  bucket: annotations
  path_style: true
log:
  mode: prod
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Inputs.CellTable != "data/cells.csv" || cfg.OutputDir != "/data/ann" {
		t.Errorf("paths not loaded: %+v", cfg.Inputs)
	}
	if g, _ := cfg.Graphic(); g != projection.Point {
		t.Errorf("graphic = %v, want POINT", g)
	}
	if c, _ := cfg.Coordinates(); c != projection.Scoord3D {
		t.Errorf("coordinates = %v, want 3D", c)
	}
	if cfg.Workers != 4 || cfg.ROIFilter.Width != 1000 {
		t.Errorf("workers=%d filter=%+v", cfg.Workers, cfg.ROIFilter)
	}
	if cfg.Device.SoftwareVersions != "1.2.0" {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.ClinicalTrial == nil || cfg.ClinicalTrial.OtherProtocolIssuer != "DOI" {
		t.Errorf("clinical trial = %+v", cfg.ClinicalTrial)
	}
	if !cfg.Publish.Enabled() || !cfg.Publish.PathStyle {
		t.Errorf("publish = %+v", cfg.Publish)
	}

	// keys absent from the file keep their defaults
	if cfg.SeriesNumber != 33 {
		t.Errorf("series number = %d, want default 33", cfg.SeriesNumber)
	}
	if cfg.Descriptions.Consensus != Default().Descriptions.Consensus {
		t.Errorf("consensus description = %q", cfg.Descriptions.Consensus)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(configPath, []byte("output_dirr: out\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := Load(configPath); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(configPath, nil, 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workers != 1 || cfg.GraphicType != "RECTANGLE" {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.Slides = []string{"slide_1_bm"}
	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Inputs != cfg.Inputs || loaded.Device != cfg.Device || len(loaded.Slides) != 1 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no tables", func(c *Config) { c.Inputs.CellTable, c.Inputs.ROITable = "", "" }, "cell table or a ROI table"},
		{"no geometry", func(c *Config) { c.Inputs.GeometryTable = "" }, "geometry_table"},
		{"hexagon", func(c *Config) { c.GraphicType = "HEXAGON" }, `"HEXAGON" not supported`},
		{"bad coordinates", func(c *Config) { c.CoordinateType = "4D" }, "coordinate"},
		{"workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"resume without ledger", func(c *Config) { c.Resume = true }, "ledger"},
		{"session placeholder", func(c *Config) { c.Descriptions.Session = "cells" }, SessionPlaceholder},
		{"long description", func(c *Config) { c.Descriptions.ROIs = strings.Repeat("x", 65) }, "series_descriptions.rois"},
		{"publish", func(c *Config) { c.Publish.Driver = "gcs" }, "bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	err := Config{}.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"output_dir", "image_root", "workers", "namespace"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestSeriesDescriptions(t *testing.T) {
	d := Default().Descriptions
	if got := d.ForSession(annotation.SessionNumber(2)); got != "BMDeep cell annotations, session 2" {
		t.Errorf("session description = %q", got)
	}
	if got := d.ForSession(annotation.Consensus); got != d.Consensus {
		t.Errorf("consensus description = %q", got)
	}
	if d.ForROIs() == d.Consensus {
		t.Error("ROI and consensus descriptions must differ")
	}
}

func TestErrorLogPath(t *testing.T) {
	cfg := validConfig()
	if got := cfg.ErrorLogPath(); got != filepath.Join("out", "conversion_error_log.csv") {
		t.Errorf("ErrorLogPath() = %q", got)
	}
	cfg.ErrorLog = "/tmp/errors.csv"
	if got := cfg.ErrorLogPath(); got != "/tmp/errors.csv" {
		t.Errorf("ErrorLogPath() = %q", got)
	}
}
