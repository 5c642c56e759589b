package subsonic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snapdog/snapdog/internal/config"
)

func testConfig(baseURL string) config.SubsonicConfig {
	return config.SubsonicConfig{
		BaseURL:  baseURL,
		Username: "alice",
		Password: "secret",
	}
}

func TestGetPlaylists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"subsonic-response":{"status":"ok","playlists":{"playlist":[{"id":"1","name":"Mix"}]}}}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil)
	playlists, err := c.GetPlaylists(context.Background())
	if err != nil {
		t.Fatalf("GetPlaylists failed: %v", err)
	}
	if len(playlists) != 1 || playlists[0].Name != "Mix" {
		t.Errorf("unexpected playlists: %+v", playlists)
	}
}

func TestGetPlaylistsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"subsonic-response":{"status":"failed","error":{"code":40,"message":"Wrong username or password"}}}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil)
	_, err := c.GetPlaylists(context.Background())
	if err == nil {
		t.Fatal("expected an error for a failed subsonic status")
	}
}

func TestGetStreamUrlWithTranscoding(t *testing.T) {
	cfg := testConfig("https://music.example.com")
	cfg.TranscodeFormat = config.TranscodeOpus
	cfg.MaxBitRateKbps = 128
	c := New(cfg, nil)

	u := c.GetStreamUrl("track-1")
	if !contains(u, "format=opus") || !contains(u, "maxBitRate=128") {
		t.Errorf("expected transcode params in URL, got %s", u)
	}
}

func TestGetStreamUrlWithoutTranscoding(t *testing.T) {
	c := New(testConfig("https://music.example.com"), nil)
	u := c.GetStreamUrl("track-1")
	if contains(u, "format=") {
		t.Errorf("expected no format param when transcoding disabled, got %s", u)
	}
}

func TestSniffContentType(t *testing.T) {
	if got := sniffContentType([]byte{0xFF, 0xD8, 0xFF}); got != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", got)
	}
	if got := sniffContentType([]byte{0x89, 0x50, 0x4E, 0x47}); got != "image/png" {
		t.Errorf("expected image/png, got %s", got)
	}
	if got := sniffContentType([]byte("garbage")); got != "image/jpeg" {
		t.Errorf("expected default image/jpeg, got %s", got)
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
