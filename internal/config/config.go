// internal/config/config.go
// Package config loads and validates the sender's PipelineConfig
// (spec.md §6), following the teacher's viper-backed pattern: defaults,
// an optional YAML file, then CLI flags layered on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName    = "audiosender"
	ConfigType = "yaml"

	SourceDesktop = "desktop"
	SourceMic     = "mic"

	TransportUDP = "udp"
	TransportTCP = "tcp"

	// MaxFrameMs is the upper bound on frame_ms, inclusive (spec.md §6).
	MaxFrameMs = 20
	// MinFrameMs is the lower bound on frame_ms, inclusive (spec.md §6).
	MinFrameMs = 1

	DefaultConfig = `# Low-latency PCM audio sender configuration

target_ip: ""           # required unless list_desktop_devices is set
port: 50000              # remote UDP/TCP port
frame_ms: 5               # network frame duration, 1-20ms
source: "desktop"        # "desktop" (loopback) or "mic" (input device)
desktop_device: ""       # optional render endpoint friendly name (desktop source only)
transport: "udp"         # "udp" or "tcp"
list_desktop_devices: false  # print render endpoints and exit
debug: false
`
)

// Settings holds the validated PipelineConfig (spec.md §3).
type Settings struct {
	TargetIP           string `mapstructure:"target_ip"`
	Port               int    `mapstructure:"port"`
	FrameMs            int    `mapstructure:"frame_ms"`
	Source             string `mapstructure:"source"`
	DesktopDevice      string `mapstructure:"desktop_device"`
	Transport          string `mapstructure:"transport"`
	ListDesktopDevices bool   `mapstructure:"list_desktop_devices"`
	Debug              bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and an optional config file. Config
// file search order: current directory, then $XDG_CONFIG_HOME/audiosender/.
func Init() error {
	viper.SetDefault("target_ip", "")
	viper.SetDefault("port", 50000)
	viper.SetDefault("frame_ms", 5)
	viper.SetDefault("source", SourceDesktop)
	viper.SetDefault("desktop_device", "")
	viper.SetDefault("transport", TransportUDP)
	viper.SetDefault("list_desktop_devices", false)
	viper.SetDefault("debug", false)

	viper.SetConfigType(ConfigType)
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file anywhere on the search path: run on
			// defaults and CLI flags alone. Unlike the teacher, this
			// program does not seed a config file on first run, since
			// target_ip has no sane default to write.
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Get unmarshals and validates the current settings.
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks PipelineConfig's invariants (spec.md §6).
func (s *Settings) Validate() error {
	var errs []error

	if !s.ListDesktopDevices && s.TargetIP == "" {
		errs = append(errs, errors.New("target_ip is required unless list_desktop_devices is set"))
	}
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", s.Port))
	}
	if s.FrameMs < MinFrameMs || s.FrameMs > MaxFrameMs {
		errs = append(errs, fmt.Errorf("frame_ms must be between %d and %d, got %d", MinFrameMs, MaxFrameMs, s.FrameMs))
	}
	if s.Source != SourceDesktop && s.Source != SourceMic {
		errs = append(errs, fmt.Errorf("source must be %q or %q, got %q", SourceDesktop, SourceMic, s.Source))
	}
	if s.Transport != TransportUDP && s.Transport != TransportTCP {
		errs = append(errs, fmt.Errorf("transport must be %q or %q, got %q", TransportUDP, TransportTCP, s.Transport))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// MaxPayloadBytes returns the payload size (sampleRate, frameMs, channels)
// would produce, used to catch the spec.md §9 open question about the
// stream sink's 16-bit length prefix at startup instead of mid-stream.
func MaxPayloadBytes(sampleRate uint32, frameMs int, channels uint16) int {
	samplesPerChannel := int(sampleRate) * frameMs / 1000
	return samplesPerChannel * int(channels) * 2
}
