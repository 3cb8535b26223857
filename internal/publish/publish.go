// Package publish uploads produced annotation objects to object storage.
package publish

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Drivers supported by New.
const (
	DriverNone = ""
	DriverS3   = "s3"
	DriverGCS  = "gcs"
)

// Config selects and configures the storage backend.
type Config struct {
	Driver          string `yaml:"driver"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Enabled reports whether a backend is configured.
func (c Config) Enabled() bool {
	return c.Driver != DriverNone
}

// Validate checks the driver name and the bucket.
func (c Config) Validate() error {
	switch strings.ToLower(c.Driver) {
	case DriverNone:
		return nil
	case DriverS3, DriverGCS:
	default:
		return fmt.Errorf("unknown publish driver %q (valid: s3, gcs)", c.Driver)
	}
	if c.Bucket == "" {
		return fmt.Errorf("publish driver %s needs a bucket", c.Driver)
	}
	return nil
}

// Publisher uploads one local file under a key relative to the configured
// prefix and returns the resulting object URL.
type Publisher interface {
	Publish(ctx context.Context, localPath, key string) (string, error)
	Close() error
}

// New returns the publisher selected by cfg.Driver, or nil when publishing
// is disabled.
func New(ctx context.Context, cfg Config) (Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Driver) {
	case DriverS3:
		return NewS3(ctx, cfg)
	case DriverGCS:
		return NewGCS(ctx, cfg)
	}
	return nil, nil
}

func objectKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".dcm":
		return "application/dicom"
	case ".png":
		return "image/png"
	case ".geojson":
		return "application/geo+json"
	case ".csv":
		return "text/csv"
	}
	if path.Base(key) == "DICOMDIR" {
		return "application/dicom"
	}
	return "application/octet-stream"
}
