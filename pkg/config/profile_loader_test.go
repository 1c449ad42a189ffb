package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, dir, code, content string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+code+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile()
	assert.Equal(t, -5, p.UTCOffset)
	assert.Equal(t, "Sunday", p.RestDay)
	assert.Equal(t, 3, p.Caps.Voice)
	assert.Equal(t, 3, p.Caps.SMS)
	assert.Equal(t, 5, p.Caps.Email)
	assert.True(t, p.Email.Unrestricted)
	require.NoError(t, validateProfile(p))
}

func TestLoadProfileDefaultCode(t *testing.T) {
	p, err := LoadProfile(t.TempDir(), "default")
	require.NoError(t, err)
	assert.Equal(t, "default", p.Code)

	p, err = LoadProfile(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, "default", p.Code)
}

func TestLoadProfileOverrides(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "ca", `
name: California
utc_offset: -8
voice:
  start_hour: 8
  end_hour: 19
caps:
  voice: 2
  sms: 3
  email: 5
`)

	p, err := LoadProfile(dir, "CA")
	require.NoError(t, err)
	assert.Equal(t, "ca", p.Code)
	assert.Equal(t, "California", p.Name)
	assert.Equal(t, -8, p.UTCOffset)
	assert.Equal(t, 8, p.Voice.StartHour)
	assert.Equal(t, 2, p.Caps.Voice)
	// Unspecified fields keep their defaults.
	assert.Equal(t, "Sunday", p.RestDay)
	assert.True(t, p.Email.Unrestricted)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "xx")
	assert.Error(t, err)
}

func TestLoadProfileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bad", `
voice:
  start_hour: 22
  end_hour: 9
caps:
  voice: 3
  sms: 3
  email: 5
`)
	_, err := LoadProfile(dir, "bad")
	assert.ErrorContains(t, err, "out of range")

	writeProfile(t, dir, "nocaps", `
caps:
  voice: 0
  sms: 3
  email: 5
`)
	_, err = LoadProfile(dir, "nocaps")
	assert.ErrorContains(t, err, "caps")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OUTREACH_DB_PATH", "/tmp/test.db")
	t.Setenv("DRAIN_BATCH_SIZE", "25")
	t.Setenv("DRAIN_LOCK_LEASE", "90s")

	cfg := Load()
	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, 25, cfg.DrainBatchSize)
	assert.Equal(t, "90s", cfg.LockLease.String())
	// Defaults survive unset keys.
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "1m0s", cfg.DrainInterval.String())
}
