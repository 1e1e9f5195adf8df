package rest

import (
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/osa030/loopbox/internal/domain/loop"
)

// saveLoopRequest is the POST /api/loop body. Only the fields present in
// the body are written; absent fields keep their stored value.
type saveLoopRequest struct {
	SpotifyUserID string
	TrackID       string

	present map[string]json.RawMessage
}

func decodeSaveLoop(r io.Reader) (*saveLoopRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&fields); err != nil {
		return nil, errors.Wrap(err, "decode body")
	}
	req := &saveLoopRequest{present: fields}
	if err := req.decodeString("spotifyUserId", &req.SpotifyUserID); err != nil {
		return nil, err
	}
	if err := req.decodeString("trackId", &req.TrackID); err != nil {
		return nil, err
	}

	// Reject bodies whose loop fields do not decode.
	if _, err := req.record(loop.Record{}); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *saveLoopRequest) decodeString(key string, out *string) error {
	raw, ok := r.present[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(raw, out), "decode %s", key)
}

// apply merges the request into base. A body carrying segments supersedes
// the legacy single-loop fields it does not mention.
func (r *saveLoopRequest) apply(base loop.Record) loop.Record {
	rec, _ := r.record(base)
	return rec
}

func (r *saveLoopRequest) record(base loop.Record) (loop.Record, error) {
	rec := base
	if _, ok := r.present["segments"]; ok {
		if _, ok := r.present["loopStart"]; !ok {
			rec.LoopStart = nil
		}
		if _, ok := r.present["loopEnd"]; !ok {
			rec.LoopEnd = nil
		}
	}

	targets := []struct {
		key string
		dst any
	}{
		{"segments", &rec.Segments},
		{"activeLoopId", &rec.ActiveLoopID},
		{"loopEnabled", &rec.LoopEnabled},
		{"loopStart", &rec.LoopStart},
		{"loopEnd", &rec.LoopEnd},
	}
	for _, t := range targets {
		raw, ok := r.present[t.key]
		if !ok {
			continue
		}
		if string(raw) == "null" {
			resetField(t.dst)
			continue
		}
		if err := json.Unmarshal(raw, t.dst); err != nil {
			return loop.Record{}, errors.Wrapf(err, "decode %s", t.key)
		}
	}
	return rec, nil
}

func resetField(dst any) {
	switch v := dst.(type) {
	case *[]loop.Segment:
		*v = nil
	case **string:
		*v = nil
	case **int:
		*v = nil
	case *bool:
		*v = false
	}
}
