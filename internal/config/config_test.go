package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory with CONFIG_ENV=test.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_ENV", "test")
	return dir
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.SignalURL)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
	assert.Equal(t, int64(32768), cfg.ReadLimit)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 32, cfg.SendBuffer)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
	assert.Empty(t, cfg.Media.RecordDir)
}

func TestLoad_Precedence(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, "config", "config.test.yaml"), `
mode: debug
port: 9000
log_level: warn
ping_period: 10s
media:
  video_file: file.ivf
  record_dir: from-file
`)
	t.Setenv("MESHCAST_PORT", "9100")
	t.Setenv("MESHCAST_MEDIA_RECORD_DIR", "from-env")
	t.Setenv("MESHCAST_ICE_SERVERS", "stun:a.example,stun:b.example")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "9200", "--audio", "mic.ogg"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9200, cfg.Port, "changed flag beats env")
	assert.Equal(t, zerolog.WarnLevel, cfg.Level())
	assert.Equal(t, 10*time.Second, cfg.PingPeriod)
	assert.Equal(t, "file.ivf", cfg.Media.VideoFile)
	assert.Equal(t, "mic.ogg", cfg.Media.AudioFile)
	assert.Equal(t, "from-env", cfg.Media.RecordDir)
	assert.Equal(t, []string{"stun:a.example", "stun:b.example"}, cfg.ICEServers)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := inTempDir(t)
	writeFile(t, filepath.Join(dir, ".env"), "MESHCAST_SIGNAL_URL=ws://relay.example/ws\n")
	t.Cleanup(func() { os.Unsetenv("MESHCAST_SIGNAL_URL") })

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "ws://relay.example/ws", cfg.SignalURL)
}

func TestLoad_Invalid(t *testing.T) {
	dir := inTempDir(t)

	t.Setenv("MESHCAST_LOG_LEVEL", "loud")
	_, err := Load(nil)
	assert.ErrorContains(t, err, "invalid log_level")

	t.Setenv("MESHCAST_LOG_LEVEL", "info")
	t.Setenv("MESHCAST_PORT", "70000")
	_, err = Load(nil)
	assert.ErrorContains(t, err, "invalid port")

	t.Setenv("MESHCAST_PORT", "8080")
	writeFile(t, filepath.Join(dir, "config", "config.test.yaml"), "port: [not a port\n")
	_, err = Load(nil)
	assert.ErrorContains(t, err, "config.test.yaml")
}
