package connect

import (
	"github.com/osa030/loopbox/internal/domain/loop"
	"github.com/osa030/loopbox/internal/domain/track"
	"github.com/osa030/loopbox/internal/infra/storage"
)

// LoopServiceName is the fully-qualified name of the loop service.
const LoopServiceName = "loopbox.v1.LoopService"

// Procedure paths of LoopService.
const (
	GetLoopProcedure          = "/" + LoopServiceName + "/GetLoop"
	SaveLoopProcedure         = "/" + LoopServiceName + "/SaveLoop"
	ListLoopsProcedure        = "/" + LoopServiceName + "/ListLoops"
	DeleteLoopProcedure       = "/" + LoopServiceName + "/DeleteLoop"
	ListRecentTracksProcedure = "/" + LoopServiceName + "/ListRecentTracks"
	AddRecentTrackProcedure   = "/" + LoopServiceName + "/AddRecentTrack"
)

type GetLoopRequest struct {
	SpotifyUserID string `json:"spotifyUserId"`
	TrackID       string `json:"trackId"`
}

type GetLoopResponse struct {
	Loop *storage.LoopData `json:"loop"` // nil when nothing is saved
}

type SaveLoopRequest struct {
	SpotifyUserID string      `json:"spotifyUserId"`
	TrackID       string      `json:"trackId"`
	Record        loop.Record `json:"record"`
}

type SaveLoopResponse struct {
	Loop *storage.LoopData `json:"loop"`
}

type ListLoopsRequest struct {
	SpotifyUserID string `json:"spotifyUserId"`
}

type ListLoopsResponse struct {
	Loops []storage.LoopData `json:"loops"`
}

type DeleteLoopRequest struct {
	SpotifyUserID string `json:"spotifyUserId"`
	TrackID       string `json:"trackId"`
}

type DeleteLoopResponse struct {
	Deleted bool `json:"deleted"`
}

type ListRecentTracksRequest struct {
	SpotifyUserID string `json:"spotifyUserId"`
	Limit         int    `json:"limit,omitempty"`
}

type ListRecentTracksResponse struct {
	Tracks []track.Track `json:"tracks"`
}

type AddRecentTrackRequest struct {
	SpotifyUserID string      `json:"spotifyUserId"`
	Track         track.Track `json:"track"`
}

type AddRecentTrackResponse struct {
	Tracks []track.Track `json:"tracks"`
}
