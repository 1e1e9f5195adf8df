package loop

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedID(id string) func() string {
	return func() string { return id }
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func TestNew_LabelAndColorCycle(t *testing.T) {
	first := New("a", 1, 0, 1000)
	assert.Equal(t, "Loop 1", first.Label)
	assert.Equal(t, Palette[0], first.Color)

	eighth := New("h", 8, 0, 1000)
	assert.Equal(t, "Loop 8", eighth.Label)
	assert.Equal(t, Palette[0], eighth.Color, "palette cycles after seven colors")
}

func TestLabelNumber(t *testing.T) {
	tests := []struct {
		label  string
		want   int
		wantOK bool
	}{
		{label: "Loop 1", want: 1, wantOK: true},
		{label: "Loop 12", want: 12, wantOK: true},
		{label: "Loop 0", wantOK: false},
		{label: "Loop 3 (verse)", wantOK: false},
		{label: "Loop 03", wantOK: false},
		{label: "Chorus", wantOK: false},
		{label: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			n, ok := LabelNumber(tt.label)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestSegment_Valid(t *testing.T) {
	assert.True(t, Segment{Start: 0, End: 1}.Valid())
	assert.False(t, Segment{Start: 5, End: 5}.Valid())
	assert.False(t, Segment{Start: 6, End: 5}.Valid())
	assert.False(t, Segment{Start: -1, End: 5}.Valid())
}

func TestRecord_Upgrade(t *testing.T) {
	segA := Segment{ID: "a", Start: 0, End: 1000, Color: Palette[0], Label: "Loop 1"}
	segB := Segment{ID: "b", Start: 2000, End: 3000, Color: Palette[1], Label: "Loop 2"}

	tests := []struct {
		name   string
		record *Record
		want   Hydration
		wantOK bool
	}{
		{
			name:   "nil record",
			record: nil,
			wantOK: false,
		},
		{
			name:   "segments with active id",
			record: &Record{Segments: []Segment{segA, segB}, ActiveLoopID: strPtr("b"), LoopEnabled: true},
			want:   Hydration{Segments: []Segment{segA, segB}, ActiveID: "b", Enabled: true},
			wantOK: true,
		},
		{
			name:   "segments without active id selects first",
			record: &Record{Segments: []Segment{segA, segB}},
			want:   Hydration{Segments: []Segment{segA, segB}, ActiveID: "a"},
			wantOK: true,
		},
		{
			name:   "unknown active id falls back to first",
			record: &Record{Segments: []Segment{segA}, ActiveLoopID: strPtr("gone")},
			want:   Hydration{Segments: []Segment{segA}, ActiveID: "a"},
			wantOK: true,
		},
		{
			name:   "invalid segments dropped",
			record: &Record{Segments: []Segment{{ID: "x", Start: 10, End: 10}, segB}},
			want:   Hydration{Segments: []Segment{segB}, ActiveID: "b"},
			wantOK: true,
		},
		{
			name:   "segments preferred over legacy",
			record: &Record{Segments: []Segment{segA}, LoopStart: intPtr(5), LoopEnd: intPtr(9)},
			want:   Hydration{Segments: []Segment{segA}, ActiveID: "a"},
			wantOK: true,
		},
		{
			name:   "legacy range synthesized",
			record: &Record{LoopStart: intPtr(1000), LoopEnd: intPtr(4000), LoopEnabled: true},
			want: Hydration{
				Segments: []Segment{{ID: "legacy", Start: 1000, End: 4000, Color: Palette[0], Label: "Loop 1"}},
				ActiveID: "legacy",
				Enabled:  true,
			},
			wantOK: true,
		},
		{
			name:   "legacy inverted range ignored",
			record: &Record{LoopStart: intPtr(4000), LoopEnd: intPtr(1000)},
			wantOK: false,
		},
		{
			name:   "legacy missing end",
			record: &Record{LoopStart: intPtr(1000)},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.record.Upgrade(fixedID("legacy"))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNewRecord_LegacyMirror(t *testing.T) {
	segs := []Segment{
		{ID: "a", Start: 0, End: 1000},
		{ID: "b", Start: 2000, End: 3000},
	}
	rec := NewRecord(segs, "b", true)

	require.NotNil(t, rec.ActiveLoopID)
	assert.Equal(t, "b", *rec.ActiveLoopID)
	require.NotNil(t, rec.LoopStart)
	assert.Equal(t, 2000, *rec.LoopStart)
	assert.Equal(t, 3000, *rec.LoopEnd)
	assert.True(t, rec.LoopEnabled)

	segs[0].Start = 500
	assert.Equal(t, 0, rec.Segments[0].Start, "record must not alias the caller's slice")
}

func TestRecord_JSONShape(t *testing.T) {
	data, err := json.Marshal(NewRecord(nil, "", false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"segments":null,"activeLoopId":null,"loopEnabled":false}`, string(data))

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"segments":null,"loopStart":1000,"loopEnd":4000,"loopEnabled":true}`), &rec))
	h, ok := rec.Upgrade(fixedID("x"))
	require.True(t, ok)
	require.Len(t, h.Segments, 1)
	assert.Equal(t, 1000, h.Segments[0].Start)
	assert.Equal(t, 4000, h.Segments[0].End)
	assert.True(t, h.Enabled)
}
