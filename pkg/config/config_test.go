package config

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/datapak/pkg/codec"
	"github.com/ssargent/datapak/pkg/pack"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "./data.pak", config.StorePath)
	assert.Equal(t, 1000, config.BatchSize)
	assert.Equal(t, "fail", config.DuplicatePolicy)
	assert.Equal(t, "crc32", config.Checksum)
	assert.Equal(t, "path", config.KeyScheme)
	assert.Equal(t, int64(268435456), config.MaxEntryBytes)
	assert.True(t, config.Sync)
	assert.Equal(t, 1000, config.ProgressEvery)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, ":9200", config.Serve.Addr)
	assert.NoError(t, config.Validate())
}

func TestGenerateSecureKey(t *testing.T) {
	t.Run("generate 32 byte key", func(t *testing.T) {
		key, err := GenerateSecureKey(32)
		require.NoError(t, err)
		assert.Len(t, key, 64) // 32 bytes = 64 hex characters

		_, err = hex.DecodeString(key)
		assert.NoError(t, err)
	})

	t.Run("generate different keys", func(t *testing.T) {
		key1, err := GenerateSecureKey(16)
		require.NoError(t, err)
		key2, err := GenerateSecureKey(16)
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})
}

func TestParse(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		config, err := Parse([]byte(`
mode: write
source_root: /data/images
store_path: /data/images.pak
batch_size: 1
duplicate_policy: skip
include: ["*.jpg"]
exclude: ["**/tmp/**"]
checksum_algorithm: blake3
key_scheme: ordinal
workers: 4
sync: false
logging: {level: debug, format: json}
`))
		require.NoError(t, err)

		assert.Equal(t, ModeWrite, config.Mode)
		assert.Equal(t, 1, config.BatchSize)
		assert.Equal(t, pack.PolicySkip, config.Policy())
		assert.Equal(t, codec.BLAKE3, config.ChecksumAlgorithm())
		assert.Equal(t, codec.OrdinalKeys, config.Scheme())
		assert.Equal(t, []string{"*.jpg"}, config.Include)
		assert.False(t, config.Sync)
		// defaults survive for omitted fields
		assert.Equal(t, int64(268435456), config.MaxEntryBytes)
		assert.Equal(t, ":9200", config.Serve.Addr)
	})

	t.Run("empty document yields defaults", func(t *testing.T) {
		config, err := Parse(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), config)
	})

	t.Run("overwrite shorthand", func(t *testing.T) {
		config, err := Parse([]byte("overwrite: true\n"))
		require.NoError(t, err)
		assert.Equal(t, pack.PolicyOverwrite, config.Policy())
	})
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown field", "batchsize: 10", ""},
		{"bad yaml", "invalid: yaml: content: [", ""},
		{"zero batch", "batch_size: 0", "batch_size"},
		{"negative batch", "batch_size: -5", "batch_size"},
		{"policy", "duplicate_policy: merge", "duplicate_policy"},
		{"overwrite conflict", "overwrite: true\nduplicate_policy: skip", "overwrite"},
		{"checksum", "checksum_algorithm: md5", "checksum_algorithm"},
		{"key scheme", "key_scheme: hash", "key_scheme"},
		{"mode", "mode: sideways", "mode"},
		{"include", "include: ['[a']", "include"},
		{"workers", "workers: -1", "workers"},
		{"max entry", "max_entry_bytes: 0", "max_entry_bytes"},
		{"datasets without manifest", "datasets: [coco]", "datasets"},
		{"log level", "logging: {level: loud}", "logging.level"},
		{"log format", "logging: {format: xml}", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "want *ConfigError, got %T", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestRequire(t *testing.T) {
	config := DefaultConfig()
	assert.Error(t, config.RequireWrite())
	assert.Error(t, config.RequireRecover())

	config.SourceRoot = "/src"
	config.DestinationRoot = "/dst"
	assert.NoError(t, config.RequireWrite())
	assert.NoError(t, config.RequireRecover())

	config.Mode = ModeWrite
	assert.Error(t, config.RequireRecover())
	config.Mode = ModeRecover
	assert.Error(t, config.RequireWrite())
}

func TestLoadConfig(t *testing.T) {
	t.Run("resolves relative paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("source_root: ./images\nstore_path: /abs/data.pak\n"), 0644))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, "images"), config.SourceRoot)
		assert.Equal(t, "/abs/data.pak", config.StorePath)
		assert.Empty(t, config.DestinationRoot)
	})

	t.Run("load non-existent config", func(t *testing.T) {
		_, err := LoadConfig("/non/existent/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	config := DefaultConfig()
	config.SourceRoot = "/data/images"
	config.StorePath = "/data/images.pak"

	require.NoError(t, SaveConfig(config, configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	// a regular file where a directory is needed
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	err := SaveConfig(DefaultConfig(), filepath.Join(blocker, "sub", "config.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}

func TestBootstrapConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	config, err := BootstrapConfig(configPath, "/custom/images")
	require.NoError(t, err)

	assert.Equal(t, "/custom/images", config.SourceRoot)
	assert.Len(t, config.Serve.APIKey, 64)
	_, err = hex.DecodeString(config.Serve.APIKey)
	assert.NoError(t, err)

	assert.True(t, ConfigExists(configPath))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config.Serve.APIKey, loaded.Serve.APIKey)
	assert.Equal(t, filepath.Join(tmpDir, "recovered"), loaded.DestinationRoot)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "datapak")
}

func TestConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingPath := filepath.Join(tmpDir, "exists.yaml")
	require.NoError(t, os.WriteFile(existingPath, []byte("test"), 0644))

	assert.True(t, ConfigExists(existingPath))
	assert.False(t, ConfigExists(filepath.Join(tmpDir, "does-not-exist.yaml")))
}

func TestLogging_NewLogger(t *testing.T) {
	var buf strings.Builder
	logger, err := Logging{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))

	_, err = Logging{Level: "verbose"}.NewLogger(&buf)
	assert.Error(t, err)
}
