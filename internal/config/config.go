package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "MESHCAST"

type MediaConfig struct {
	VideoFile  string `mapstructure:"video_file"`
	AudioFile  string `mapstructure:"audio_file"`
	ScreenFile string `mapstructure:"screen_file"`
	// RecordDir enables recording of received tracks when set.
	RecordDir string `mapstructure:"record_dir"`
}

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	SignalURL      string        `mapstructure:"signal_url"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	LogLevel       string        `mapstructure:"log_level"`
	Media          MediaConfig   `mapstructure:"media"`
}

// Level parses LogLevel; Load has already validated it.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// flag name -> config key
var flagKeys = map[string]string{
	"mode":            "mode",
	"port":            "port",
	"signal-url":      "signal_url",
	"ice-server":      "ice_servers",
	"read-limit":      "read_limit",
	"ping-period":     "ping_period",
	"send-buffer":     "send_buffer",
	"reconnect-delay": "reconnect_delay",
	"log-level":       "log_level",
	"video":           "media.video_file",
	"audio":           "media.audio_file",
	"screen":          "media.screen_file",
	"record-dir":      "media.record_dir",
}

// RegisterFlags declares the command-line overrides. Unset flags fall back
// to env, file and defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("mode", "release", "gin mode: release, debug or test")
	fs.Int("port", 8080, "control API port")
	fs.String("signal-url", "ws://localhost:8080/ws", "signaling relay websocket URL")
	fs.StringSlice("ice-server", nil, "STUN/TURN URL, repeatable")
	fs.Int64("read-limit", 32768, "max signaling frame size in bytes")
	fs.Duration("ping-period", 54*time.Second, "signaling keepalive period")
	fs.Int("send-buffer", 32, "outgoing signaling queue length")
	fs.Duration("reconnect-delay", 3*time.Second, "pause before redialing signaling")
	fs.String("log-level", "info", "zerolog level")
	fs.String("video", "", "IVF file played as camera video")
	fs.String("audio", "", "Ogg/Opus file played as microphone")
	fs.String("screen", "", "IVF file played as screen share")
	fs.String("record-dir", "", "directory for recordings of received tracks")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("signal_url", "ws://localhost:8080/ws")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("reconnect_delay", "3s")
	v.SetDefault("log_level", "info")
	v.SetDefault("media.video_file", "")
	v.SetDefault("media.audio_file", "")
	v.SetDefault("media.screen_file", "")
	v.SetDefault("media.record_dir", "")
}

// Load merges, in increasing priority: defaults, config/config.<CONFIG_ENV>.yaml,
// MESHCAST_* environment (after .env), and changed flags. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", fileName, err)
		}
		log.Info().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("signal_url", cfg.SignalURL).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SignalURL == "" {
		return errors.New("signal_url is required")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}
