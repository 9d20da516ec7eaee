// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"time"
)

// Environment overrides.
const (
	EnvDataDir      = "MODELSHELF_DATA_DIR"
	EnvHFToken      = "MODELSHELF_HF_TOKEN"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

type ShelfConfig struct {
	// DataDir holds models.json, prefs/ and models/.
	DataDir string `yaml:"data_dir" validate:"required"`

	Log       LogConfig       `yaml:"log"`
	Download  DownloadConfig  `yaml:"download"`
	GCS       GCSConfig       `yaml:"gcs"`
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// TrustedVisionIDs extends the built-in vision ids allowed to claim
	// vision capability.
	TrustedVisionIDs []string `yaml:"trusted_vision_ids"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

type DownloadConfig struct {
	MinArtifactBytes int64         `yaml:"min_artifact_bytes" validate:"gte=0"`
	RequestTimeout   time.Duration `yaml:"request_timeout" validate:"gte=0"`
	ProgressInterval time.Duration `yaml:"progress_interval" validate:"gte=0"`
	UserAgent        string        `yaml:"user_agent,omitempty"`
	MaxParallel      int           `yaml:"max_parallel" validate:"gte=1,lte=16"`

	// TokenHosts limits where the Hugging Face token is sent.
	TokenHosts []string `yaml:"token_hosts"`
}

type GCSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type EngineConfig struct {
	// LlamaServerURL is a running llama.cpp server used by `generate`.
	LlamaServerURL string `yaml:"llama_server_url,omitempty" validate:"omitempty,url"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	Stdout       bool   `yaml:"stdout"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() ShelfConfig {
	dataDir := ".modelshelf"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".modelshelf", "data")
	}
	return ShelfConfig{
		DataDir: dataDir,
		Log: LogConfig{
			Level: "info",
		},
		Download: DownloadConfig{
			MinArtifactBytes: 1_000_000,
			RequestTimeout:   60 * time.Second,
			ProgressInterval: 200 * time.Millisecond,
			UserAgent:        "modelshelf/1.0",
			MaxParallel:      2,
			TokenHosts:       []string{"huggingface.co"},
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:12280",
		},
		TrustedVisionIDs: []string{},
	}
}

// HFToken returns the Hugging Face token from the environment. Tokens are
// never stored in the config file.
func HFToken() string {
	return os.Getenv(EnvHFToken)
}
