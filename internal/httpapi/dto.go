package httpapi

import "github.com/snapdog/snapdog/internal/domain"

// Response is the {success, data?, error?} envelope every endpoint
// returns, per spec.md §6.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error half of Response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ZoneDTO is the wire representation of domain.Zone. Clients is
// flattened to a sorted slice of indices since JSON object keys would
// otherwise need to be strings for an int-keyed map.
type ZoneDTO struct {
	Index           int             `json:"index"`
	Name            string          `json:"name"`
	Clients         []int           `json:"clients"`
	Playback        domain.Playback `json:"playback"`
	Volume          int             `json:"volume"`
	Muted           bool            `json:"muted"`
	TrackRepeat     bool            `json:"trackRepeat"`
	PlaylistRepeat  bool            `json:"playlistRepeat"`
	PlaylistShuffle bool            `json:"playlistShuffle"`
	Playlist        *PlaylistDTO    `json:"playlist,omitempty"`
	Track           *TrackDTO       `json:"track,omitempty"`
}

// PlaylistDTO is the wire representation of domain.PlaylistInfo.
type PlaylistDTO struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	TrackIDs []string `json:"trackIds"`
}

// TrackDTO is the wire representation of domain.TrackInfo.
type TrackDTO struct {
	Index      int    `json:"index"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	PositionMs int    `json:"positionMs"`
	DurationMs int    `json:"durationMs"`
	SubsonicID string `json:"subsonicId"`
}

func zoneToDTO(z domain.Zone) ZoneDTO {
	out := ZoneDTO{
		Index:           z.Index,
		Name:            z.Name,
		Clients:         sortedKeys(z.Clients),
		Playback:        z.Playback,
		Volume:          z.Volume,
		Muted:           z.Mute,
		TrackRepeat:     z.TrackRepeat,
		PlaylistRepeat:  z.PlaylistRepeat,
		PlaylistShuffle: z.PlaylistShuffle,
	}
	if z.CurrentPlaylist != nil {
		out.Playlist = &PlaylistDTO{
			ID:       z.CurrentPlaylist.ID,
			Name:     z.CurrentPlaylist.Name,
			TrackIDs: z.CurrentPlaylist.TrackIDs,
		}
	}
	if z.CurrentTrack != nil {
		t := z.CurrentTrack
		out.Track = &TrackDTO{
			Index:      t.Index,
			Title:      t.Title,
			Artist:     t.Artist,
			Album:      t.Album,
			PositionMs: t.PositionMs,
			DurationMs: t.DurationMs,
			SubsonicID: t.SubsonicID,
		}
	}
	return out
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for a := 1; a < len(out); a++ {
		for b := a; b > 0 && out[b-1] > out[b]; b-- {
			out[b-1], out[b] = out[b], out[b-1]
		}
	}
	return out
}

// ClientDTO is the wire representation of domain.Client.
type ClientDTO struct {
	Index            int    `json:"index"`
	Name             string `json:"name"`
	CurrentZoneIndex int    `json:"currentZoneIndex"`
	Connected        bool   `json:"connected"`
	Volume           int    `json:"volume"`
	Muted            bool   `json:"muted"`
	LatencyMs        int    `json:"latencyMs"`
}

func clientToDTO(c domain.Client) ClientDTO {
	return ClientDTO{
		Index:            c.Index,
		Name:             c.Name,
		CurrentZoneIndex: c.CurrentZoneIndex,
		Connected:        c.Connected,
		Volume:           c.Volume,
		Muted:            c.Mute,
		LatencyMs:        c.LatencyMs,
	}
}
