// Package config holds the single configuration value built at process start
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Storage backend names
const (
	StorageFS     = "fs"
	StorageS3     = "s3"
	StorageSQLite = "sqlite"
	StoragePebble = "pebble"
	StorageMemory = "memory"
)

type Config struct {
	Storage Storage `yaml:"storage"`
	Server  Server  `yaml:"server"`
	Lake    Lake    `yaml:"lake"`
}

type Storage struct {
	Type string `yaml:"type"`
	// Path is the directory (fs, pebble) or database file (sqlite)
	Path string `yaml:"path"`
	S3   S3     `yaml:"s3"`
}

type S3 struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

type Server struct {
	Port       int  `yaml:"port"`
	Gzip       bool `yaml:"gzip"`
	EagerSizes bool `yaml:"eagerSizes"`
	MaxDepth   int  `yaml:"maxDepth"`
	MaxLinks   int  `yaml:"maxLinks"`
	// HealthzMaxAge is the allowed staleness of the ingestion timestamp, in seconds
	HealthzMaxAge int `yaml:"healthzMaxAge"`
}

// Lake locates NEAR Lake data and scopes which receipts get ingested
type Lake struct {
	Bucket           string   `yaml:"bucket"`
	Region           string   `yaml:"region"`
	Endpoint         string   `yaml:"endpoint"`
	StartBlockHeight uint64   `yaml:"startBlockHeight"`
	BatchSize        int      `yaml:"batchSize"`
	Limit            int      `yaml:"limit"`
	Include          []string `yaml:"include"`
	Exclude          []string `yaml:"exclude"`
	// Dir reads a lake mirrored to a local directory instead of S3
	Dir    string `yaml:"dir"`
	Follow bool   `yaml:"follow"`
}

func Default() Config {
	return Config{
		Storage: Storage{
			Type: StorageFS,
			Path: "./storage",
			S3: S3{
				Region:   "us-east-1",
				Endpoint: "http://localhost:9000",
				Bucket:   "nearfs-storage",
			},
		},
		Server: Server{
			Port:          3000,
			EagerSizes:    true,
			MaxDepth:      64,
			MaxLinks:      1 << 16,
			HealthzMaxAge: 60,
		},
		Lake: Lake{
			Bucket:    "near-lake-data-mainnet",
			Region:    "eu-central-1",
			Endpoint:  "https://s3.eu-central-1.amazonaws.com",
			BatchSize: 20,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path, if any
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("expanding config file path: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize expands ~ in paths and validates the result
func (c *Config) Normalize() error {
	if c.Storage.Path != "" {
		path, err := homedir.Expand(c.Storage.Path)
		if err != nil {
			return fmt.Errorf("expanding storage path: %w", err)
		}
		c.Storage.Path = path
	}
	return c.Validate()
}

func (c Config) Validate() error {
	var err error
	switch c.Storage.Type {
	case StorageFS, StorageSQLite, StoragePebble:
		if c.Storage.Path == "" {
			err = multierr.Append(err, fmt.Errorf("storage type %s requires a storage path", c.Storage.Type))
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			err = multierr.Append(err, errors.New("storage type s3 requires a bucket name"))
		}
	case StorageMemory:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Server.MaxDepth <= 0 {
		err = multierr.Append(err, fmt.Errorf("max depth must be positive, got %d", c.Server.MaxDepth))
	}
	if c.Server.MaxLinks <= 0 {
		err = multierr.Append(err, fmt.Errorf("max links must be positive, got %d", c.Server.MaxLinks))
	}
	if c.Lake.BatchSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("lake batch size must be positive, got %d", c.Lake.BatchSize))
	}
	return err
}
