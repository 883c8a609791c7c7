// Package config loads relay and phone settings from YAML, environment
// and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RAILPHONE"

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=console json"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

type CallRateConfig struct {
	Limit    int           `mapstructure:"limit" validate:"gte=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

type RelayConfig struct {
	Mode       string         `mapstructure:"mode" validate:"oneof=debug release test"`
	Port       int            `mapstructure:"port" validate:"gte=1,lte=65535"`
	ReadLimit  int64          `mapstructure:"read_limit" validate:"gt=0"`
	PingPeriod time.Duration  `mapstructure:"ping_period" validate:"gt=0"`
	CallRate   CallRateConfig `mapstructure:"call_rate"`
	MediaQueue int            `mapstructure:"media_queue" validate:"gte=1"`
	Log        LogConfig      `mapstructure:"log"`
}

type StationConfig struct {
	Number string `mapstructure:"number"`
	Name   string `mapstructure:"name"`
}

type AudioConfig struct {
	Backend    string  `mapstructure:"backend" validate:"oneof=malgo none"`
	Input      string  `mapstructure:"input"`
	Output     string  `mapstructure:"output"`
	InputGain  float64 `mapstructure:"input_gain" validate:"gte=0,lte=8"`
	OutputGain float64 `mapstructure:"output_gain" validate:"gte=0,lte=8"`
}

type CuesConfig struct {
	Dir     string `mapstructure:"dir"`
	RingGap int    `mapstructure:"ring_gap" validate:"gte=0"`
	HoldGap int    `mapstructure:"hold_gap" validate:"gte=0"`
}

type DatagramConfig struct {
	Bind      string `mapstructure:"bind" validate:"required"`
	Advertise string `mapstructure:"advertise"`
}

type PhoneConfig struct {
	RelayAddr         string           `mapstructure:"relay_addr" validate:"required"`
	Station           StationConfig    `mapstructure:"station"`
	Transport         string           `mapstructure:"transport" validate:"oneof=stream datagram"`
	Datagram          DatagramConfig   `mapstructure:"datagram"`
	Audio             AudioConfig      `mapstructure:"audio"`
	Cues              CuesConfig       `mapstructure:"cues"`
	BusyDisplayDelay  time.Duration    `mapstructure:"busy_display_delay" validate:"gte=0"`
	ReconnectInterval time.Duration    `mapstructure:"reconnect_interval" validate:"gt=0"`
	Directory         []domain.Station `mapstructure:"directory"`
	Log               LogConfig        `mapstructure:"log"`
}

// Selection is the audio snapshot handed to the coordinator.
func (a AudioConfig) Selection() domain.AudioSelection {
	return domain.AudioSelection{Input: a.Input, Output: a.Output, InputGain: a.InputGain, OutputGain: a.OutputGain}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setLogDefaults(v)
	return v
}

func setLogDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// readFile loads fileName if present. A missing file is not an error.
func readFile(v *viper.Viper, fileName string) error {
	if fileName == "" {
		return nil
	}
	v.SetConfigFile(fileName)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config")
	return nil
}

// LoadRelay reads config/relay.<CONFIG_ENV>.yaml (dev by default).
func LoadRelay() (*RelayConfig, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadRelayFile(fmt.Sprintf("config/relay.%s.yaml", env))
}

func LoadRelayFile(fileName string) (*RelayConfig, error) {
	v := newViper()
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("call_rate.limit", 10)
	v.SetDefault("call_rate.interval", "1m")
	v.SetDefault("media_queue", 64)

	if err := readFile(v, fileName); err != nil {
		return nil, err
	}

	var cfg RelayConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("relay config")
	return &cfg, nil
}

// LoadPhone reads fileName and applies flag overrides bound from fs
// (--relay, --number, --name, --transport).
func LoadPhone(fileName string, fs *pflag.FlagSet) (*PhoneConfig, error) {
	v := newViper()
	v.SetDefault("relay_addr", "ws://localhost:8080")
	v.SetDefault("transport", "stream")
	v.SetDefault("station.number", "")
	v.SetDefault("station.name", "")
	v.SetDefault("datagram.bind", "0.0.0.0:0")
	v.SetDefault("datagram.advertise", "")
	v.SetDefault("audio.input", "")
	v.SetDefault("audio.output", "")
	v.SetDefault("audio.backend", "malgo")
	v.SetDefault("audio.input_gain", 1.0)
	v.SetDefault("audio.output_gain", 1.0)
	v.SetDefault("cues.dir", "./cues")
	v.SetDefault("cues.ring_gap", 4000)
	v.SetDefault("cues.hold_gap", 1000)
	v.SetDefault("busy_display_delay", "2s")
	v.SetDefault("reconnect_interval", "5s")

	if fs != nil {
		for key, flag := range map[string]string{
			"relay_addr":     "relay",
			"station.number": "number",
			"station.name":   "name",
			"transport":      "transport",
		} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if err := readFile(v, fileName); err != nil {
		return nil, err
	}

	var cfg PhoneConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("relay", cfg.RelayAddr).
		Str("station", cfg.Station.Number).
		Str("transport", cfg.Transport).
		Int("directory", len(cfg.Directory)).
		Msg("phone config")
	return &cfg, nil
}
