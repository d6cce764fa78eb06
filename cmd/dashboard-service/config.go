package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"testbridge/internal/ciclient"
	"testbridge/internal/common/cache"
	commonmw "testbridge/internal/common/http/middleware"
	"testbridge/internal/common/storage"
	"testbridge/internal/dashboard/spreadsheet"
	"testbridge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:5000"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultMaxUploadBytes = 10 << 20
	defaultLocalDir       = "data"
	defaultBucket         = "testbridge"
	defaultTestCasesKey   = "test_cases.json"
	defaultArchivePrefix  = "uploads/"
	defaultArchiveKeep    = 50

	storeBackendMemory  = "memory"
	storeBackendRedis   = "redis"
	storageBackendLocal = "local"
	storageBackendMinIO = "minio"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// StoreConfig selects where the current verdict lives.
type StoreConfig struct {
	Backend  string        `yaml:"backend"`
	RedisKey string        `yaml:"redisKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig selects where test cases and archived uploads are written.
type StorageConfig struct {
	Backend      string              `yaml:"backend"`
	LocalDir     string              `yaml:"localDir"`
	Bucket       string              `yaml:"bucket"`
	TestCasesKey string              `yaml:"testCasesKey"`
	Timeout      time.Duration       `yaml:"timeout"`
	MinIO        storage.MinIOConfig `yaml:"minio"`
}

// ArchiveConfig controls keeping uploaded spreadsheets.
type ArchiveConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
	Keep    int    `yaml:"keep"`
}

// UploadConfig holds spreadsheet upload settings.
type UploadConfig struct {
	MaxBytes   int64         `yaml:"maxBytes"`
	HeaderRows *int          `yaml:"headerRows"`
	Sheet      string        `yaml:"sheet"`
	Archive    ArchiveConfig `yaml:"archive"`
}

// AppConfig holds dashboard-service configuration.
type AppConfig struct {
	Server  ServerConfig        `yaml:"server"`
	Logger  logger.Config       `yaml:"logger"`
	CORS    commonmw.CORSConfig `yaml:"cors"`
	Store   StoreConfig         `yaml:"store"`
	Redis   cache.RedisConfig   `yaml:"redis"`
	Storage StorageConfig       `yaml:"storage"`
	Upload  UploadConfig        `yaml:"upload"`
	CI      ciclient.Config     `yaml:"ci"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfg := AppConfig{
		CORS:  commonmw.DefaultCORSConfig(),
		Redis: *cache.DefaultRedisConfig(),
	}
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	ciclient.ApplyEnv(&cfg.CI)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = storeBackendMemory
	}
	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = 1 * time.Second
	}
	switch cfg.Store.Backend {
	case storeBackendMemory:
	case storeBackendRedis:
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("redis addr is required for the redis store backend")
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = storageBackendLocal
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = defaultLocalDir
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = cfg.Storage.MinIO.Bucket
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = defaultBucket
	}
	if cfg.Storage.TestCasesKey == "" {
		cfg.Storage.TestCasesKey = defaultTestCasesKey
	}
	if cfg.Storage.Timeout == 0 {
		cfg.Storage.Timeout = 5 * time.Second
	}
	switch cfg.Storage.Backend {
	case storageBackendLocal:
	case storageBackendMinIO:
		if cfg.Storage.MinIO.Endpoint == "" {
			return nil, fmt.Errorf("minio endpoint is required for the minio storage backend")
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Upload.MaxBytes <= 0 {
		cfg.Upload.MaxBytes = defaultMaxUploadBytes
	}
	if cfg.Upload.HeaderRows == nil {
		rows := spreadsheet.DefaultOptions().HeaderRows
		cfg.Upload.HeaderRows = &rows
	}
	if *cfg.Upload.HeaderRows < 0 {
		return nil, fmt.Errorf("upload headerRows must not be negative")
	}
	if cfg.Upload.Archive.Enabled == nil {
		enabled := true
		cfg.Upload.Archive.Enabled = &enabled
	}
	if cfg.Upload.Archive.Prefix == "" {
		cfg.Upload.Archive.Prefix = defaultArchivePrefix
	}
	if cfg.Upload.Archive.Keep == 0 {
		cfg.Upload.Archive.Keep = defaultArchiveKeep
	}

	if cfg.CI.Timeout == 0 {
		cfg.CI.Timeout = ciclient.DefaultTimeout
	}

	return &cfg, nil
}

func (c UploadConfig) sheetOptions() spreadsheet.Options {
	return spreadsheet.Options{
		HeaderRows:     *c.HeaderRows,
		Sheet:          c.Sheet,
		UnzipSizeLimit: c.MaxBytes * 20,
	}
}
