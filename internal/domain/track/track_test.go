package track

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrack_DurationMs(t *testing.T) {
	tr := &Track{Duration: 3*time.Minute + 500*time.Millisecond}
	assert.Equal(t, 180500, tr.DurationMs())
}

func TestTrack_PrimaryArtist(t *testing.T) {
	tests := []struct {
		name    string
		artists []string
		want    string
	}{
		{name: "no artists", artists: nil, want: ""},
		{name: "single", artists: []string{"Queen"}, want: "Queen"},
		{name: "first of many", artists: []string{"Daft Punk", "Pharrell"}, want: "Daft Punk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &Track{Artists: tt.artists}
			assert.Equal(t, tt.want, tr.PrimaryArtist())
		})
	}
}

func TestTrack_JSONDuration(t *testing.T) {
	tr := Track{ID: "abc", Name: "Song", Duration: 2500 * time.Millisecond}
	data, err := json.Marshal(tr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"durationMs":2500`)
	assert.Contains(t, string(data), `"id":"abc"`)

	var decoded Track
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, tr.Duration, decoded.Duration)
	assert.Equal(t, "Song", decoded.Name)
}

func TestTrack_HasPreview(t *testing.T) {
	assert.False(t, (&Track{}).HasPreview())
	assert.True(t, (&Track{PreviewURL: "https://p.scdn.co/mp3-preview/x"}).HasPreview())
}
