// Package track provides the Track domain entity.
package track

import (
	"encoding/json"
	"time"
)

// PreviewDuration is the length of the 30-second preview clip Spotify serves.
const PreviewDuration = 30 * time.Second

// Track represents a Spotify track entity.
// Contains only information retrieved from Spotify API.
type Track struct {
	ID          string        `json:"id"`          // Spotify Track ID
	Name        string        `json:"name"`        // Track name
	Artists     []string      `json:"artists"`     // Artist names
	Album       string        `json:"album"`       // Album name
	AlbumArtURL string        `json:"albumArtUrl"` // Album art URL
	Duration    time.Duration `json:"-"`           // Track duration
	URI         string        `json:"uri"`         // spotify:track:ID
	URL         string        `json:"url"`         // Spotify URL
	PreviewURL  string        `json:"previewUrl"`  // 30s preview clip, empty if unavailable
}

// DurationMs returns the track duration in milliseconds.
func (t *Track) DurationMs() int {
	return int(t.Duration / time.Millisecond)
}

// HasPreview reports whether a preview clip can be used as a playback fallback.
func (t *Track) HasPreview() bool {
	return t.PreviewURL != ""
}

// PrimaryArtist returns the first artist name, or "" if none.
func (t *Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

type trackJSON struct {
	*alias
	DurationMs int `json:"durationMs"`
}

type alias Track

// MarshalJSON encodes Duration as whole milliseconds.
func (t Track) MarshalJSON() ([]byte, error) {
	a := alias(t)
	return json.Marshal(trackJSON{alias: &a, DurationMs: t.DurationMs()})
}

// UnmarshalJSON decodes durationMs into Duration.
func (t *Track) UnmarshalJSON(data []byte) error {
	v := trackJSON{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	t.Duration = time.Duration(v.DurationMs) * time.Millisecond
	return nil
}
