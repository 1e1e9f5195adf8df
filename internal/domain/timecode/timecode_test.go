package timecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDisplay(t *testing.T) {
	tests := []struct {
		name string
		ms   int
		want string
	}{
		{name: "zero", ms: 0, want: "0:00"},
		{name: "floors to seconds", ms: 1999, want: "0:01"},
		{name: "minutes", ms: 125000, want: "2:05"},
		{name: "long track", ms: 3600000, want: "60:00"},
		{name: "negative clamps", ms: -10, want: "0:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDisplay(tt.ms))
		})
	}
}

func TestFormatEditable(t *testing.T) {
	assert.Equal(t, "", FormatEditable(1234, false))
	assert.Equal(t, "0:01.234", FormatEditable(1234, true))
	assert.Equal(t, "3:20.000", FormatEditable(200000, true))
	assert.Equal(t, "0:00.007", FormatEditable(7, true))
}

func TestParseEditable(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   int
		wantOK bool
	}{
		{name: "minutes and seconds", input: "1:05", want: 65000, wantOK: true},
		{name: "with millis", input: "1:05.250", want: 65250, wantOK: true},
		{name: "short fraction is padded", input: "0:01.5", want: 1500, wantOK: true},
		{name: "two digit fraction", input: "0:01.05", want: 1050, wantOK: true},
		{name: "empty fraction", input: "0:07.", want: 7000, wantOK: true},
		{name: "surrounding space", input: " 0:10 ", want: 10000, wantOK: true},
		{name: "seconds out of range", input: "1:60", wantOK: false},
		{name: "non numeric minutes", input: "a:10", wantOK: false},
		{name: "negative minutes", input: "-1:10", wantOK: false},
		{name: "fraction too long", input: "0:10.1234", wantOK: false},
		{name: "fraction not numeric", input: "0:10.ab", wantOK: false},
		{name: "missing colon", input: "100", wantOK: false},
		{name: "too many colons", input: "1:2:3", wantOK: false},
		{name: "empty", input: "", wantOK: false},
		{name: "minutes overflow", input: "9999999999999999:00", wantOK: false},
		{name: "minutes beyond int", input: "99999999999999999999:00", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseEditable(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseEditable_RoundTrip(t *testing.T) {
	for _, ms := range []int{0, 1, 999, 1000, 59999, 60000, 61001, 200000, 3599999, 7200123} {
		got, ok := ParseEditable(FormatEditable(ms, true))
		assert.True(t, ok, "ms=%d", ms)
		assert.Equal(t, ms, got)
	}
}
