// Package subsonic is a REST client for a Subsonic-API-compatible
// music server. Request shape and the get/post-via-shared-client
// pattern are grounded on internal/homeassistant/client.go, adapted
// to use internal/httpkit's resilient *http.Client instead of a curl
// subprocess — httpkit's retry transport already covers the
// transient-error retry this adapter's resilience policy needs, so
// there is no reason to shell out the way the teacher's HA client did.
package subsonic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/httpkit"
	"github.com/snapdog/snapdog/internal/result"
)

const apiVersion = "1.16.1"

// Client talks to a Subsonic-compatible server (Navidrome, Airsonic,
// ...) over its REST API.
type Client struct {
	cfg        config.SubsonicConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg config.SubsonicConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithRetry(3, 0),
		),
		logger: logger,
	}
}

// subsonicEnvelope is the common response wrapper every Subsonic
// endpoint returns in JSON mode (f=json).
type subsonicEnvelope struct {
	SubsonicResponse struct {
		Status  string `json:"status"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
		Playlists struct {
			Playlist []wirePlaylist `json:"playlist"`
		} `json:"playlists"`
		Playlist wirePlaylistDetail `json:"playlist"`
	} `json:"subsonic-response"`
}

type wirePlaylist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wirePlaylistDetail struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Entry []wireEntry  `json:"entry"`
}

type wireEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Duration int    `json:"duration"`
}

func (c *Client) baseParams() url.Values {
	v := url.Values{}
	v.Set("u", c.cfg.Username)
	v.Set("p", c.cfg.Password.Reveal())
	v.Set("v", apiVersion)
	v.Set("c", clientName(c.cfg.ClientName))
	v.Set("f", "json")
	return v
}

func clientName(name string) string {
	if name == "" {
		return "snapdog"
	}
	return name
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out *subsonicEnvelope) *result.Error {
	u := c.cfg.BaseURL + "/rest/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return result.New(result.Internal, "subsonic: build request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result.New(result.Unavailable, "subsonic: %s unreachable: %v", endpoint, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 4096)
		return result.New(result.External, "subsonic: %s returned %d: %s", endpoint, resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return result.New(result.External, "subsonic: read %s response: %v", endpoint, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return result.New(result.External, "subsonic: decode %s response: %v", endpoint, err)
	}
	if out.SubsonicResponse.Status != "ok" {
		msg := "unknown error"
		if out.SubsonicResponse.Error != nil {
			msg = out.SubsonicResponse.Error.Message
		}
		return result.New(result.External, "subsonic: %s failed: %s", endpoint, msg)
	}
	return nil
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) *result.Error {
	var env subsonicEnvelope
	return c.get(ctx, "ping", c.baseParams(), &env)
}

// GetPlaylists returns every playlist visible to the configured user.
func (c *Client) GetPlaylists(ctx context.Context) ([]domain.PlaylistInfo, *result.Error) {
	var env subsonicEnvelope
	if err := c.get(ctx, "getPlaylists", c.baseParams(), &env); err != nil {
		return nil, err
	}
	out := make([]domain.PlaylistInfo, 0, len(env.SubsonicResponse.Playlists.Playlist))
	for _, p := range env.SubsonicResponse.Playlists.Playlist {
		out = append(out, domain.PlaylistInfo{ID: p.ID, Name: p.Name})
	}
	return out, nil
}

// GetPlaylist returns one playlist's full track listing.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*domain.PlaylistInfo, *result.Error) {
	params := c.baseParams()
	params.Set("id", id)
	var env subsonicEnvelope
	if err := c.get(ctx, "getPlaylist", params, &env); err != nil {
		return nil, err
	}
	detail := env.SubsonicResponse.Playlist
	trackIDs := make([]string, 0, len(detail.Entry))
	for _, e := range detail.Entry {
		trackIDs = append(trackIDs, e.ID)
	}
	return &domain.PlaylistInfo{ID: detail.ID, Name: detail.Name, TrackIDs: trackIDs}, nil
}

// GetStreamUrl synthesizes a stream URL per spec.md §4.7; transcoding
// parameters appear only when a transcode format is configured.
func (c *Client) GetStreamUrl(trackID string) string {
	params := c.baseParams()
	params.Set("id", trackID)
	if c.cfg.TranscodeFormat != config.TranscodeDisabled && c.cfg.TranscodeFormat != "" {
		params.Set("format", string(c.cfg.TranscodeFormat))
		if c.cfg.MaxBitRateKbps > 0 {
			params.Set("maxBitRate", strconv.Itoa(c.cfg.MaxBitRateKbps))
		}
	}
	return c.cfg.BaseURL + "/rest/stream?" + params.Encode()
}

// CoverArt is a cover-art byte stream with a sniffed content type.
type CoverArt struct {
	ContentType string
	Data        []byte
}

var (
	jpegMagic = []byte{0xFF, 0xD8}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// GetCoverArt fetches cover art and sniffs its content type from
// magic bytes, defaulting to image/jpeg per spec.md §4.7.
func (c *Client) GetCoverArt(ctx context.Context, coverID string) (*CoverArt, *result.Error) {
	params := c.baseParams()
	params.Set("id", coverID)
	u := c.cfg.BaseURL + "/rest/getCoverArt?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, result.New(result.Internal, "subsonic: build cover art request: %v", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, result.New(result.Unavailable, "subsonic: cover art unreachable: %v", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 8<<20)

	if resp.StatusCode != http.StatusOK {
		return nil, result.New(result.External, "subsonic: cover art returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, result.New(result.External, "subsonic: read cover art: %v", err)
	}

	return &CoverArt{ContentType: sniffContentType(data), Data: data}, nil
}

func sniffContentType(data []byte) string {
	if bytes.HasPrefix(data, jpegMagic) {
		return "image/jpeg"
	}
	if bytes.HasPrefix(data, pngMagic) {
		return "image/png"
	}
	return "image/jpeg"
}
