package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 8080\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func baseYAML() string {
	return "zones:\n" +
		"  - name: Living Room\n" +
		"services:\n" +
		"  snapcast:\n" +
		"    host: localhost\n"
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := baseYAML() + "  mqtt:\n    password: ${SNAPDOG_TEST_PASSWORD}\n"
	os.WriteFile(path, []byte(content), 0600)
	os.Setenv("SNAPDOG_TEST_PASSWORD", "secret123")
	defer os.Unsetenv("SNAPDOG_TEST_PASSWORD")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Services.MQTT.Password.Reveal() != "secret123" {
		t.Errorf("password = %q, want %q", cfg.Services.MQTT.Password.Reveal(), "secret123")
	}
}

func TestMaskedString_NeverLeaksViaString(t *testing.T) {
	m := MaskedString("sk-test-key")
	if m.String() != "***" {
		t.Errorf("String() = %q, want ***", m.String())
	}
	if m.Reveal() != "sk-test-key" {
		t.Errorf("Reveal() = %q, want sk-test-key", m.Reveal())
	}
}

func TestLoad_RequiresAtLeastOneZone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("services:\n  snapcast:\n    host: localhost\n"), 0600)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for missing zones")
	}
	if !strings.Contains(err.Error(), "zone") {
		t.Errorf("error should mention zones, got: %v", err)
	}
}

func TestLoad_RequiresSnapcastHost(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("zones:\n  - name: Kitchen\n"), 0600)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for missing snapcast host")
	}
	if !strings.Contains(err.Error(), "snapcast.host") {
		t.Errorf("error should mention snapcast.host, got: %v", err)
	}
}

func TestApplyDefaults_Ports(t *testing.T) {
	cfg := Default()
	if cfg.Listen.Port != 8080 {
		t.Errorf("expected default listen.port 8080, got %d", cfg.Listen.Port)
	}
	if cfg.Services.Snapcast.Port != 1705 {
		t.Errorf("expected default snapcast.port 1705, got %d", cfg.Services.Snapcast.Port)
	}
}

func TestApplyDefaults_ResiliencePolicies(t *testing.T) {
	cfg := Default()
	for name, p := range map[string]RetryPolicy{
		"snapcast": cfg.Resilience.Snapcast,
		"mqtt":     cfg.Resilience.MQTT,
		"knx":      cfg.Resilience.KNX,
		"subsonic": cfg.Resilience.Subsonic,
	} {
		if p.Factor != 2.0 {
			t.Errorf("%s: expected factor 2.0, got %v", name, p.Factor)
		}
		if p.JitterPct != 0.25 {
			t.Errorf("%s: expected jitter 0.25, got %v", name, p.JitterPct)
		}
		if p.MaxRetries != 5 {
			t.Errorf("%s: expected max_retries 5, got %d", name, p.MaxRetries)
		}
	}
}

func TestValidate_KNXTunnelRequiresGateway(t *testing.T) {
	cfg := Default()
	cfg.Services.KNX = KNXConfig{Enabled: true, Mode: KNXModeTunnel}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing gateway")
	}
	if !strings.Contains(err.Error(), "knx.gateway") {
		t.Errorf("error should mention knx.gateway, got: %v", err)
	}
}

func TestValidate_KNXRouterRequiresMulticastAddress(t *testing.T) {
	cfg := Default()
	cfg.Services.KNX = KNXConfig{Enabled: true, Mode: KNXModeRouter}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing multicast address")
	}
	if !strings.Contains(err.Error(), "multicast_address") {
		t.Errorf("error should mention multicast_address, got: %v", err)
	}
}

func TestValidate_KNXUSBNoAddressRequired(t *testing.T) {
	cfg := Default()
	cfg.Services.KNX = KNXConfig{Enabled: true, Mode: KNXModeUSB}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidate_KNXDisabledSkipsValidation(t *testing.T) {
	cfg := Default()
	cfg.Services.KNX = KNXConfig{Enabled: false, Mode: ""}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled KNX should skip validation, got: %v", err)
	}
}

func TestValidate_InvalidTranscodeFormat(t *testing.T) {
	cfg := Default()
	cfg.Services.Subsonic.TranscodeFormat = "flac-lossless"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for invalid transcode format")
	}
	if !strings.Contains(err.Error(), "transcode_format") {
		t.Errorf("error should mention transcode_format, got: %v", err)
	}
}

func TestValidate_ZoneNameRequired(t *testing.T) {
	cfg := Default()
	cfg.Zones = []ZoneConfig{{Name: ""}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty zone name")
	}
	if !strings.Contains(err.Error(), "zones[0].name") {
		t.Errorf("error should mention zones[0].name, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
}

func TestDefault_PassesValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() config should validate cleanly, got: %v", err)
	}
}
