package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AppliesDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestValidate_ResolvesProjectPath(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{ProjectPath: dir}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, dir, cfg.ProjectPath)
}

func TestValidate_RejectsMalformedRemoteURL(t *testing.T) {
	cfg := &Config{RemoteURL: "not-a-url"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsWellFormedRemoteURL(t *testing.T) {
	cfg := &Config{RemoteURL: "https://example.com:8787"}
	assert.NoError(t, cfg.Validate())
}

func TestLogValue_MasksRemoteToken(t *testing.T) {
	cfg := Config{RemoteToken: "sk-verysecrettoken"}
	masked := cfg.LogValue().String()
	assert.Contains(t, masked, "sk-v")
	assert.NotContains(t, masked, "verysecrettoken")
}
