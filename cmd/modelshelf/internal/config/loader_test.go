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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvOTLPEndpoint, "")
	path := filepath.Join(t.TempDir(), ".modelshelf", "config.yaml")

	cfg, created, err := Load(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.FileExists(t, path)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
	assert.Equal(t, int64(1_000_000), cfg.Download.MinArtifactBytes)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk ShelfConfig
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	assert.Equal(t, 2, onDisk.Download.MaxParallel)

	_, created, err = Load(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvOTLPEndpoint, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/models
download:
  max_parallel: 4
  request_timeout: 90s
trusted_vision_ids: [custom-vlm]
`), 0o644))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/models", cfg.DataDir)
	assert.Equal(t, 4, cfg.Download.MaxParallel)
	assert.Equal(t, 90*time.Second, cfg.Download.RequestTimeout)
	assert.Equal(t, "modelshelf/1.0", cfg.Download.UserAgent)
	assert.Equal(t, []string{"custom-vlm"}, cfg.TrustedVisionIDs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDataDir, "/tmp/shelf-env")
	t.Setenv(EnvOTLPEndpoint, "collector:4317")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/shelf-env", cfg.DataDir)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte("download: [not, a, map]\n"), 0o644))
	_, _, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("download:\n  max_parallel: 0\n"), 0o644))
	_, _, err = Load(path)
	assert.ErrorContains(t, err, "invalid config")

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))
	_, _, err = Load(path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestHFToken(t *testing.T) {
	t.Setenv(EnvHFToken, "hf_secret")
	assert.Equal(t, "hf_secret", HFToken())
}
