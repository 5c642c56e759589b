// Package config handles Snapdog configuration loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/snapdog/config.yaml,
// /config/config.yaml, /etc/snapdog/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "snapdog", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/snapdog/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// MaskedString wraps a secret value (passwords, tokens) so it is never
// written to logs in the clear. It implements slog.LogValuer (via
// LogValue), so any slog call that takes a MaskedString by value is
// redacted by construction rather than by caller discipline.
type MaskedString string

// LogValue satisfies slog.LogValuer, so any handler formatting a
// MaskedString field calls this instead of reflecting into the
// underlying string.
func (m MaskedString) LogValue() slog.Value {
	return slog.StringValue("***")
}

// Reveal returns the underlying secret. Call sites that build outbound
// requests (e.g. the Subsonic stream URL, the MQTT CONNECT packet) use
// this explicitly; logging call sites pass the MaskedString itself.
func (m MaskedString) Reveal() string { return string(m) }

// String implements fmt.Stringer with the redacted form, so an
// accidental %v/%s format verb does not leak the secret either.
func (m MaskedString) String() string { return "***" }

// MarshalYAML keeps round-tripping through YAML transparent for tools
// that re-serialize a loaded Config.
func (m MaskedString) MarshalYAML() (interface{}, error) {
	return string(m), nil
}

// Config holds all Snapdog configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Zones       []ZoneConfig      `yaml:"zones"`
	Clients     []ClientConfig    `yaml:"clients"`
	Services    ServicesConfig    `yaml:"services"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
	Directories DirectoriesConfig `yaml:"directories"`
	LogLevel    string            `yaml:"log_level"`
}

// DirectoriesConfig names the on-disk directories the orchestrator's
// ValidatingDirectories step must create (if absent) and confirm are
// writable before startup proceeds.
type DirectoriesConfig struct {
	DataDir  string `yaml:"data_dir"`  // Default: ~/.snapdog/data
	CacheDir string `yaml:"cache_dir"` // Default: ~/.snapdog/cache, holds fetched cover art
}

// ListenConfig defines the HTTP API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8080
}

// KNXAddressMap lists the group addresses for one entity's KNX
// operations. A blank field means that operation has no KNX binding.
type KNXAddressMap struct {
	Volume         string `yaml:"volume"`
	VolumeStatus   string `yaml:"volume_status"`
	Mute           string `yaml:"mute"`
	MuteStatus     string `yaml:"mute_status"`
	Play           string `yaml:"play"`
	Pause          string `yaml:"pause"`
	Stop           string `yaml:"stop"`
	PlaybackStatus string `yaml:"playback_status"`
	Next           string `yaml:"next"`
	Prev           string `yaml:"prev"`
	Zone           string `yaml:"zone"`        // client only: write to move client to a zone
	ZoneStatus     string `yaml:"zone_status"` // client only: current zone index
}

// ZoneConfig describes one logical room at startup. Index is derived
// from position in this slice (1-based) and is stable for the life of
// the process.
type ZoneConfig struct {
	Name             string        `yaml:"name"`
	SnapcastSinkPath string        `yaml:"snapcast_sink_path"`
	MQTTBaseTopic    string        `yaml:"mqtt_base_topic"`
	IconURL          string        `yaml:"icon_url"`
	KNX              KNXAddressMap `yaml:"knx"`
}

// ClientConfig describes one logical playback endpoint at startup.
type ClientConfig struct {
	Name          string        `yaml:"name"`
	Mac           string        `yaml:"mac"` // matched against Client.OnConnect's host.mac to learn SnapcastClientID
	MQTTBaseTopic string        `yaml:"mqtt_base_topic"`
	IconURL       string        `yaml:"icon_url"`
	KNX           KNXAddressMap `yaml:"knx"`
}

// ServicesConfig groups the connection settings for every external
// system Snapdog adapts.
type ServicesConfig struct {
	Snapcast SnapcastConfig `yaml:"snapcast"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	KNX      KNXConfig      `yaml:"knx"`
	Subsonic SubsonicConfig `yaml:"subsonic"`
}

// SnapcastConfig configures the JSON-RPC connection to the Snapcast
// server.
type SnapcastConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"` // Default: 1705
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	BrokerURL    string       `yaml:"broker_url"` // e.g. tcp://localhost:1883
	ClientID     string       `yaml:"client_id"`  // Default: generated uuid if empty
	Username     string       `yaml:"username"`
	Password     MaskedString `yaml:"password"`
	BaseTopic    string       `yaml:"base_topic"`                 // Default: "snapdog"
	RateLimitMsg int          `yaml:"rate_limit_messages_per_sec"` // Default: 100
	Discovery    bool         `yaml:"discovery"`                  // Home-Assistant-style discovery, disabled by default
}

// KNXMode selects how the KNX adapter reaches the bus.
type KNXMode string

const (
	KNXModeTunnel KNXMode = "tunnel"
	KNXModeRouter KNXMode = "router"
	KNXModeUSB    KNXMode = "usb"
)

// KNXConfig configures the bus connection.
type KNXConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Mode             KNXMode `yaml:"mode"`
	Gateway          string  `yaml:"gateway"`           // host:port, tunnel mode
	MulticastAddress string  `yaml:"multicast_address"` // router mode, DNS-resolved if not literal
	USBDevice        string  `yaml:"usb_device"`        // empty = auto-select first
	ReconnectSeconds int     `yaml:"reconnect_seconds"` // Default: 30
}

// TranscodeFormat enumerates the Subsonic stream transcoding targets.
type TranscodeFormat string

const (
	TranscodeDisabled TranscodeFormat = "disabled"
	TranscodeMp3      TranscodeFormat = "mp3"
	TranscodeOpus     TranscodeFormat = "opus"
	TranscodeOgg      TranscodeFormat = "ogg"
)

// SubsonicConfig configures the Subsonic-compatible media server.
type SubsonicConfig struct {
	BaseURL         string          `yaml:"base_url"`
	Username        string          `yaml:"username"`
	Password        MaskedString    `yaml:"password"`
	ClientName      string          `yaml:"client_name"` // Default: "snapdog"
	TranscodeFormat TranscodeFormat `yaml:"transcode_format"`
	MaxBitRateKbps  int             `yaml:"max_bitrate_kbps"`
}

// RetryPolicy controls exponential backoff with jitter for a single
// adapter's resilience behavior.
type RetryPolicy struct {
	BaseDelay  time.Duration `yaml:"base_delay"`
	Factor     float64       `yaml:"factor"`
	JitterPct  float64       `yaml:"jitter_pct"` // e.g. 0.25 = +/-25%
	MaxDelay   time.Duration `yaml:"max_delay"`
	MaxRetries int           `yaml:"max_retries"` // 0 = retry indefinitely
}

// ResilienceConfig groups the per-adapter retry policies plus the
// startup orchestrator and reconciliation loop timings.
type ResilienceConfig struct {
	Snapcast          RetryPolicy   `yaml:"snapcast"`
	MQTT              RetryPolicy   `yaml:"mqtt"`
	KNX               RetryPolicy   `yaml:"knx"`
	Subsonic          RetryPolicy   `yaml:"subsonic"`
	StartupValidation RetryPolicy   `yaml:"startup_validation"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"` // Default: 30s
	OperationTimeout  time.Duration `yaml:"operation_timeout"`  // Default: 10s, per outbound adapter call
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${SNAPDOG_MQTT_PASSWORD}).
	// This is a convenience for container deployments; the recommended
	// approach is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func defaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  time.Second,
		Factor:     2.0,
		JitterPct:  0.25,
		MaxDelay:   30 * time.Second,
		MaxRetries: 5,
	}
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Services.Snapcast.Port == 0 {
		c.Services.Snapcast.Port = 1705
	}
	if c.Services.MQTT.BaseTopic == "" {
		c.Services.MQTT.BaseTopic = "snapdog"
	}
	if c.Services.MQTT.RateLimitMsg == 0 {
		c.Services.MQTT.RateLimitMsg = 100
	}
	if c.Services.KNX.Mode == "" {
		c.Services.KNX.Mode = KNXModeTunnel
	}
	if c.Services.KNX.ReconnectSeconds == 0 {
		c.Services.KNX.ReconnectSeconds = 30
	}
	if c.Services.Subsonic.ClientName == "" {
		c.Services.Subsonic.ClientName = "snapdog"
	}
	if c.Services.Subsonic.TranscodeFormat == "" {
		c.Services.Subsonic.TranscodeFormat = TranscodeDisabled
	}
	if c.Directories.DataDir == "" || c.Directories.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		if c.Directories.DataDir == "" {
			c.Directories.DataDir = filepath.Join(home, ".snapdog", "data")
		}
		if c.Directories.CacheDir == "" {
			c.Directories.CacheDir = filepath.Join(home, ".snapdog", "cache")
		}
	}

	empty := RetryPolicy{}
	if c.Resilience.Snapcast == empty {
		c.Resilience.Snapcast = defaultRetryPolicy()
	}
	if c.Resilience.MQTT == empty {
		c.Resilience.MQTT = defaultRetryPolicy()
	}
	if c.Resilience.KNX == empty {
		c.Resilience.KNX = defaultRetryPolicy()
	}
	if c.Resilience.Subsonic == empty {
		c.Resilience.Subsonic = defaultRetryPolicy()
	}
	if c.Resilience.StartupValidation == empty {
		sv := defaultRetryPolicy()
		sv.JitterPct = 0 // startup validation uses additive 0-1s jitter, applied by the orchestrator itself
		c.Resilience.StartupValidation = sv
	}
	if c.Resilience.ReconcileInterval == 0 {
		c.Resilience.ReconcileInterval = 30 * time.Second
	}
	if c.Resilience.OperationTimeout == 0 {
		c.Resilience.OperationTimeout = 10 * time.Second
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if len(c.Zones) == 0 {
		return fmt.Errorf("at least one zone must be configured")
	}
	for i, z := range c.Zones {
		if z.Name == "" {
			return fmt.Errorf("zones[%d].name must not be empty", i)
		}
	}
	for i, cl := range c.Clients {
		if cl.Name == "" {
			return fmt.Errorf("clients[%d].name must not be empty", i)
		}
	}
	if c.Services.Snapcast.Host == "" {
		return fmt.Errorf("services.snapcast.host must not be empty")
	}
	if c.Services.Snapcast.Port < 1 || c.Services.Snapcast.Port > 65535 {
		return fmt.Errorf("services.snapcast.port %d out of range (1-65535)", c.Services.Snapcast.Port)
	}
	if c.Services.KNX.Enabled {
		switch c.Services.KNX.Mode {
		case KNXModeTunnel:
			if c.Services.KNX.Gateway == "" {
				return fmt.Errorf("services.knx.gateway required for tunnel mode")
			}
		case KNXModeRouter:
			if c.Services.KNX.MulticastAddress == "" {
				return fmt.Errorf("services.knx.multicast_address required for router mode")
			}
		case KNXModeUSB:
			// usb_device may be empty (auto-select)
		default:
			return fmt.Errorf("services.knx.mode %q invalid (tunnel|router|usb)", c.Services.KNX.Mode)
		}
	}
	switch c.Services.Subsonic.TranscodeFormat {
	case TranscodeDisabled, TranscodeMp3, TranscodeOpus, TranscodeOgg:
	default:
		return fmt.Errorf("services.subsonic.transcode_format %q invalid", c.Services.Subsonic.TranscodeFormat)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a minimal configuration suitable for local
// development against a Snapcast server on localhost. All defaults
// are already applied.
func Default() *Config {
	cfg := &Config{
		Zones: []ZoneConfig{
			{Name: "Living Room", SnapcastSinkPath: "/tmp/snapdog/living-room"},
		},
		Services: ServicesConfig{
			Snapcast: SnapcastConfig{Host: "localhost"},
		},
	}
	cfg.applyDefaults()
	return cfg
}
