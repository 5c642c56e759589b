package domain

import "testing"

func TestTrackInfoEqualIgnoringPosition(t *testing.T) {
	a := TrackInfo{Index: 1, Title: "Song", PositionMs: 1000}
	b := TrackInfo{Index: 1, Title: "Song", PositionMs: 5000}
	if !a.EqualIgnoringPosition(b) {
		t.Error("expected tracks to be equal ignoring position")
	}

	c := TrackInfo{Index: 2, Title: "Other", PositionMs: 1000}
	if a.EqualIgnoringPosition(c) {
		t.Error("expected tracks with different identity to differ")
	}
}

func TestPlaylistInfoEqual(t *testing.T) {
	a := PlaylistInfo{ID: "1", Name: "Mix", TrackIDs: []string{"a", "b"}}
	b := PlaylistInfo{ID: "1", Name: "Mix", TrackIDs: []string{"a", "b"}}
	if !a.Equal(b) {
		t.Error("expected identical playlists to be equal")
	}

	c := PlaylistInfo{ID: "1", Name: "Mix", TrackIDs: []string{"a", "c"}}
	if a.Equal(c) {
		t.Error("expected playlists with different tracks to differ")
	}
}

func TestClampVolume(t *testing.T) {
	cases := map[int]int{-5: 0, 0: 0, 50: 50, 100: 100, 150: 100}
	for in, want := range cases {
		if got := ClampVolume(in); got != want {
			t.Errorf("ClampVolume(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestClampLatency(t *testing.T) {
	cases := map[int]int{-1: 0, 0: 0, 100: 100, 70000: 65535}
	for in, want := range cases {
		if got := ClampLatency(in); got != want {
			t.Errorf("ClampLatency(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestZoneCloneIsDeep(t *testing.T) {
	z := Zone{
		Index:   1,
		Clients: map[int]struct{}{1: {}},
		CurrentTrack: &TrackInfo{Index: 1, Title: "Song"},
	}
	cp := z.Clone()
	cp.Clients[2] = struct{}{}
	cp.CurrentTrack.Title = "Changed"

	if _, ok := z.Clients[2]; ok {
		t.Error("mutating the clone's Clients map affected the original")
	}
	if z.CurrentTrack.Title != "Song" {
		t.Error("mutating the clone's CurrentTrack affected the original")
	}
}
