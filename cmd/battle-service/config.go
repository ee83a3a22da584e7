package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"codeverse/internal/battle/sandbox"
	"codeverse/internal/battle/service"
	"codeverse/internal/battle/transport"
	"codeverse/internal/common/cache"
	"codeverse/internal/common/db"
	commonmw "codeverse/internal/common/http/middleware"
	"codeverse/internal/common/mq"
	"codeverse/internal/common/storage"
	"codeverse/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultWallTime        = 5 * time.Second
	defaultOutputBytes     = 1 << 20
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// SandboxAppConfig holds sandbox executor settings.
type SandboxAppConfig struct {
	WorkRoot       string `yaml:"workRoot"`
	HelperPath     string `yaml:"helperPath"`
	EnableSeccomp  bool   `yaml:"enableSeccomp"`
	MemoryMB       int64  `yaml:"memoryMB"`
	StderrMaxBytes int64  `yaml:"stderrMaxBytes"`
}

func (c SandboxAppConfig) toSandboxConfig() sandbox.Config {
	return sandbox.Config{
		WorkRoot:       c.WorkRoot,
		HelperPath:     c.HelperPath,
		EnableSeccomp:  c.EnableSeccomp,
		MemoryMB:       c.MemoryMB,
		StderrMaxBytes: c.StderrMaxBytes,
	}
}

// JudgeLimitsConfig bounds one test case execution.
type JudgeLimitsConfig struct {
	WallTime    time.Duration `yaml:"wallTime"`
	OutputBytes int64         `yaml:"outputBytes"`
}

func (c JudgeLimitsConfig) toLimits() sandbox.Limits {
	limits := sandbox.Limits{WallTime: c.WallTime, OutputBytes: c.OutputBytes}
	if limits.WallTime <= 0 {
		limits.WallTime = defaultWallTime
	}
	if limits.OutputBytes <= 0 {
		limits.OutputBytes = defaultOutputBytes
	}
	return limits
}

// EventsConfig holds event stream settings.
type EventsConfig struct {
	BattleEndedTopic string `yaml:"battleEndedTopic"`
}

// SubmissionArchiveConfig holds submission archive settings.
type SubmissionArchiveConfig struct {
	Bucket string `yaml:"bucket"`
}

// LanguageConfig holds language profile definitions.
type LanguageConfig struct {
	Profiles []sandbox.LanguageProfileConfig `yaml:"profiles"`
}

// AppConfig holds battle-service config.
type AppConfig struct {
	Server     ServerConfig            `yaml:"server"`
	Logger     logger.Config           `yaml:"logger"`
	Database   db.MySQLConfig          `yaml:"database"`
	Redis      cache.RedisConfig       `yaml:"redis"`
	MinIO      storage.MinIOConfig     `yaml:"minio"`
	Kafka      mq.KafkaConfig          `yaml:"kafka"`
	Auth       transport.AuthConfig    `yaml:"auth"`
	CORS       commonmw.CORSConfig     `yaml:"cors"`
	Battle     service.Config          `yaml:"battle"`
	Sandbox    SandboxAppConfig        `yaml:"sandbox"`
	Judge      JudgeLimitsConfig       `yaml:"judge"`
	Events     EventsConfig            `yaml:"events"`
	Submission SubmissionArchiveConfig `yaml:"submission"`
	Language   LanguageConfig          `yaml:"language"`
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
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.MinIO.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Sandbox.WorkRoot == "" {
		return nil, fmt.Errorf("sandbox work root is required")
	}
	if cfg.Events.BattleEndedTopic == "" {
		return nil, fmt.Errorf("battle ended topic is required")
	}
	if cfg.Submission.Bucket == "" {
		cfg.Submission.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Submission.Bucket == "" {
		return nil, fmt.Errorf("submission bucket is required")
	}
	if len(cfg.Language.Profiles) == 0 {
		return nil, fmt.Errorf("at least one language profile is required")
	}
	return &cfg, nil
}
