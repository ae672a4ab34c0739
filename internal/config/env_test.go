package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_STR", "stanza")
	t.Setenv("CFG_INT", "8")
	t.Setenv("CFG_BAD_INT", "eight")
	t.Setenv("CFG_FLOAT", "1.5")
	t.Setenv("CFG_BOOL", "yes")
	t.Setenv("CFG_SECS", "30")

	assert.Equal(t, "stanza", GetEnv("CFG_STR", "spacy"))
	assert.Equal(t, "spacy", GetEnv("CFG_MISSING", "spacy"))
	assert.Equal(t, 8, GetEnvInt("CFG_INT", 1))
	assert.Equal(t, 1, GetEnvInt("CFG_BAD_INT", 1))
	assert.Equal(t, 1.5, GetEnvFloat("CFG_FLOAT", 0))
	assert.True(t, GetEnvBool("CFG_BOOL", false))
	assert.False(t, GetEnvBool("CFG_MISSING", false))
	assert.Equal(t, 30*time.Second, GetEnvSeconds("CFG_SECS", time.Second))
	assert.Equal(t, time.Second, GetEnvSeconds("CFG_MISSING", time.Second))
}

func TestLoadConfigDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CFG_FROM_FILE=file\nCFG_PRESET=file\n"), 0o644))

	t.Setenv("CFG_PRESET", "env")
	t.Setenv("CFG_FROM_FILE", "")
	os.Unsetenv("CFG_FROM_FILE")

	require.NoError(t, LoadConfig(path))
	assert.Equal(t, "file", os.Getenv("CFG_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("CFG_PRESET"))
	os.Unsetenv("CFG_FROM_FILE")
}
