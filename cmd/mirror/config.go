// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianMirror/pkg/validation"
	"github.com/AleutianAI/AleutianMirror/services/mirror/replicate"
	"github.com/AleutianAI/AleutianMirror/services/mirror/source"
)

// maxConfigBytes caps the config file size.
const maxConfigBytes = 1 << 20

// Config is the mirror configuration. Precedence: defaults, then the YAML
// file, then environment variables.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Notion      NotionConfig      `yaml:"notion"`
	Replication ReplicationConfig `yaml:"replication"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gte=1,lte=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

type NotionConfig struct {
	BaseURL    string `yaml:"base_url" validate:"required,url"`
	APIVersion string `yaml:"api_version" validate:"required"`

	// Token is normally supplied through NOTION_API_KEY.
	Token string `yaml:"token"`

	RootID            string        `yaml:"root_id" validate:"omitempty,contentid"`
	RootKind          string        `yaml:"root_kind" validate:"oneof=block database"`
	PageSize          int           `yaml:"page_size" validate:"gte=1,lte=100"`
	RequestTimeout    time.Duration `yaml:"request_timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gt=0"`
}

type ReplicationConfig struct {
	MaxDepth          int `yaml:"max_depth" validate:"gte=1"`
	OverallDepthLimit int `yaml:"overall_depth_limit" validate:"gte=1,lte=32"`
}

type SnapshotConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file badger gcs"`

	// Path is the snapshot file for the file backend.
	Path string `yaml:"path" validate:"required_if=Backend file"`

	// BadgerDir is the database directory for the badger backend.
	BadgerDir string `yaml:"badger_dir" validate:"required_if=Backend badger"`

	GCSBucket          string `yaml:"gcs_bucket" validate:"required_if=Backend gcs"`
	GCSObject          string `yaml:"gcs_object" validate:"required_if=Backend gcs"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	Dir    string `yaml:"dir"`
}

type TelemetryConfig struct {
	// OTLPEndpoint enables trace export over OTLP gRPC when set.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Port: 3000, ShutdownTimeout: 10 * time.Second},
		Notion: NotionConfig{
			BaseURL:           source.DefaultBaseURL,
			APIVersion:        source.DefaultAPIVersion,
			RootKind:          "block",
			PageSize:          source.DefaultPageSize,
			RequestTimeout:    source.DefaultRequestTimeout,
			RequestsPerSecond: source.DefaultRequestsPerSecond,
		},
		Replication: ReplicationConfig{
			MaxDepth:          replicate.DefaultMaxDepth,
			OverallDepthLimit: replicate.DefaultOverallDepthLimit,
		},
		Snapshot: SnapshotConfig{Backend: "file", Path: "data/articles.json"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("contentid", func(fl validator.FieldLevel) bool {
		return validation.ValidateContentID(fl.Field().String()) == nil
	})
}

// LoadConfig builds the configuration from path (optional) and the
// environment looked up through getenv.
func LoadConfig(path string, getenv func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read the config file: %w", err)
		}
		if info.Size() > maxConfigBytes {
			return cfg, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), maxConfigBytes)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config, getenv func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := getenv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := getenv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", key, v)
		}
		*dst = n
		return nil
	}

	str("NOTION_API_KEY", &cfg.Notion.Token)
	str("NOTION_BASE_URL", &cfg.Notion.BaseURL)
	str("NOTION_ROOT_ID", &cfg.Notion.RootID)
	str("NOTION_ROOT_KIND", &cfg.Notion.RootKind)
	str("MIRROR_SNAPSHOT_BACKEND", &cfg.Snapshot.Backend)
	str("MIRROR_SNAPSHOT_PATH", &cfg.Snapshot.Path)
	str("MIRROR_BADGER_DIR", &cfg.Snapshot.BadgerDir)
	str("MIRROR_GCS_BUCKET", &cfg.Snapshot.GCSBucket)
	str("MIRROR_GCS_OBJECT", &cfg.Snapshot.GCSObject)
	str("GOOGLE_APPLICATION_CREDENTIALS", &cfg.Snapshot.GCSCredentialsFile)
	str("MIRROR_LOG_LEVEL", &cfg.Logging.Level)
	str("MIRROR_LOG_FORMAT", &cfg.Logging.Format)
	str("MIRROR_LOG_DIR", &cfg.Logging.Dir)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)

	// PORT is the conventional fallback; MIRROR_PORT wins when both are set.
	if err := num("PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := num("MIRROR_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := num("MIRROR_MAX_DEPTH", &cfg.Replication.MaxDepth); err != nil {
		return err
	}
	return num("MIRROR_OVERALL_DEPTH_LIMIT", &cfg.Replication.OverallDepthLimit)
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireRemote checks the settings only fetching needs.
func (c Config) RequireRemote() error {
	var missing []string
	if c.Notion.Token == "" {
		missing = append(missing, "NOTION_API_KEY")
	}
	if c.Notion.RootID == "" {
		missing = append(missing, "NOTION_ROOT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("fetching requires %s", strings.Join(missing, " and "))
	}
	return nil
}

// RootTarget returns the listing the configured root resolves to.
func (c Config) RootTarget() source.Target {
	if c.Notion.RootKind == "database" {
		return source.Rows(c.Notion.RootID)
	}
	return source.Children(c.Notion.RootID)
}
