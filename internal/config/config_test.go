package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
}

func TestInit_WithDefaults(t *testing.T) {
	resetViper()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
	}{
		{"target_ip", ""},
		{"port", 50000},
		{"frame_ms", 5},
		{"source", "desktop"},
		{"desktop_device", ""},
		{"transport", "udp"},
		{"list_desktop_devices", false},
		{"debug", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := viper.Get(tt.key)
			if got != tt.expected {
				t.Errorf("viper.Get(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestInit_NoConfigFileIsNotAnError(t *testing.T) {
	resetViper()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v, want nil when no config file exists", err)
	}
}

func TestInit_ReadsLocalConfigFirst(t *testing.T) {
	resetViper()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	origDir, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	defer func() {
		if err := os.Chdir(origDir); err != nil {
			t.Logf("failed to restore dir: %v", err)
		}
	}()

	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("port: 7000"), 0644); err != nil {
		t.Fatalf("failed to write local config: %v", err)
	}

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if got := viper.GetInt("port"); got != 7000 {
		t.Errorf("viper.GetInt(port) = %d, want 7000 (local config)", got)
	}
}

func TestInit_InvalidConfigFile(t *testing.T) {
	resetViper()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("invalid: yaml: content: [[["), 0644); err != nil {
		t.Fatalf("failed to write invalid config: %v", err)
	}

	origDir, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	defer func() {
		if err := os.Chdir(origDir); err != nil {
			t.Logf("failed to restore dir: %v", err)
		}
	}()

	if err := Init(); err == nil {
		t.Error("Init() should return error for invalid YAML")
	}
}

func TestGet_ReturnsSettings(t *testing.T) {
	resetViper()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	origDir, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	defer func() {
		if err := os.Chdir(origDir); err != nil {
			t.Logf("failed to restore dir: %v", err)
		}
	}()

	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("target_ip: 192.168.1.50\nport: 6000\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	settings, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if settings.TargetIP != "192.168.1.50" {
		t.Errorf("Settings.TargetIP = %q, want %q", settings.TargetIP, "192.168.1.50")
	}
	if settings.Port != 6000 {
		t.Errorf("Settings.Port = %d, want 6000", settings.Port)
	}
	if settings.FrameMs != 5 {
		t.Errorf("Settings.FrameMs = %d, want 5", settings.FrameMs)
	}
	if settings.Source != SourceDesktop {
		t.Errorf("Settings.Source = %q, want %q", settings.Source, SourceDesktop)
	}
	if settings.Transport != TransportUDP {
		t.Errorf("Settings.Transport = %q, want %q", settings.Transport, TransportUDP)
	}
}

func TestGet_PropagatesValidationError(t *testing.T) {
	resetViper()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// No target_ip and list_desktop_devices unset: invalid.
	if _, err := Get(); err == nil {
		t.Error("Get() should return an error when target_ip is missing")
	}
}

func TestConstants(t *testing.T) {
	if AppName != "audiosender" {
		t.Errorf("AppName = %q, want %q", AppName, "audiosender")
	}
	if ConfigType != "yaml" {
		t.Errorf("ConfigType = %q, want %q", ConfigType, "yaml")
	}
}

// Validation tests

func validSettings() *Settings {
	return &Settings{
		TargetIP:  "192.168.1.50",
		Port:      50000,
		FrameMs:   5,
		Source:    SourceDesktop,
		Transport: TransportUDP,
	}
}

func TestSettings_Validate_ValidSettings(t *testing.T) {
	if err := validSettings().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for valid settings", err)
	}
}

func TestSettings_Validate_TargetIPRequired(t *testing.T) {
	s := validSettings()
	s.TargetIP = ""
	if err := s.Validate(); err == nil {
		t.Error("Validate() should require target_ip")
	}

	s.ListDesktopDevices = true
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil when list_desktop_devices bypasses target_ip", err)
	}
}

func TestSettings_Validate_Port(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"zero", 0, true},
		{"minimum", 1, false},
		{"typical", 50000, false},
		{"maximum", 65535, false},
		{"too high", 65536, true},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.Port = tt.port
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_FrameMs(t *testing.T) {
	tests := []struct {
		name    string
		frameMs int
		wantErr bool
	}{
		{"too low", 0, true},
		{"minimum", 1, false},
		{"typical", 5, false},
		{"maximum", 20, false},
		{"too high", 21, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.FrameMs = tt.frameMs
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_Source(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr bool
	}{
		{"desktop", "desktop", false},
		{"mic", "mic", false},
		{"empty", "", true},
		{"unknown", "speaker", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.Source = tt.source
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_Transport(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		wantErr   bool
	}{
		{"udp", "udp", false},
		{"tcp", "tcp", false},
		{"empty", "", true},
		{"unknown", "quic", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.Transport = tt.transport
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_MultipleErrors(t *testing.T) {
	s := &Settings{
		TargetIP:  "",
		Port:      0,
		FrameMs:   0,
		Source:    "bad",
		Transport: "bad",
	}

	err := s.Validate()
	if err == nil {
		t.Fatal("Validate() should return error for multiple invalid fields")
	}

	errStr := err.Error()
	for _, substr := range []string{"target_ip", "port", "frame_ms", "source", "transport"} {
		if !contains(errStr, substr) {
			t.Errorf("Validate() error should mention %q, got: %v", substr, errStr)
		}
	}
}

func TestMaxPayloadBytes(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate uint32
		frameMs    int
		channels   uint16
		want       int
	}{
		{"48kHz stereo 5ms", 48000, 5, 2, 960},
		{"44.1kHz mono 20ms", 44100, 20, 1, 1764},
		{"8kHz mono 5ms", 8000, 5, 1, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxPayloadBytes(tt.sampleRate, tt.frameMs, tt.channels)
			if got != tt.want {
				t.Errorf("MaxPayloadBytes(%d, %d, %d) = %d, want %d", tt.sampleRate, tt.frameMs, tt.channels, got, tt.want)
			}
		})
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
