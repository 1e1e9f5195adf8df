// Package connect provides the Connect RPC loop service and its client.
package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/loopbox/internal/domain/track"
	"github.com/osa030/loopbox/internal/infra/metrics"
	"github.com/osa030/loopbox/internal/infra/storage"
)

// LoopLister lists all loops saved by a user.
type LoopLister interface {
	ListLoops(ctx context.Context, userID string) ([]storage.LoopData, error)
}

// RecentStore reads and writes recent tracks.
type RecentStore interface {
	ListRecentTracks(ctx context.Context, userID string, limit int) ([]track.Track, error)
	AddRecentTrack(ctx context.Context, userID string, t track.Track) error
}

// ServiceConfig holds the LoopService backends.
type ServiceConfig struct {
	Loops       storage.LoopRows
	Lister      LoopLister
	Recent      RecentStore
	RecentLimit int
	Metrics     *metrics.Metrics
}

// LoopService implements the LoopService RPC.
type LoopService struct {
	config ServiceConfig
}

// NewLoopService creates a new LoopService.
func NewLoopService(cfg ServiceConfig) *LoopService {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = storage.DefaultRecentLimit
	}
	return &LoopService{config: cfg}
}

// NewLoopServiceHandler builds an HTTP handler serving every LoopService
// procedure. It returns the path prefix to mount it on.
func NewLoopServiceHandler(svc *LoopService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetLoopProcedure, connect.NewUnaryHandler(GetLoopProcedure, svc.GetLoop, opts...))
	mux.Handle(SaveLoopProcedure, connect.NewUnaryHandler(SaveLoopProcedure, svc.SaveLoop, opts...))
	mux.Handle(ListLoopsProcedure, connect.NewUnaryHandler(ListLoopsProcedure, svc.ListLoops, opts...))
	mux.Handle(DeleteLoopProcedure, connect.NewUnaryHandler(DeleteLoopProcedure, svc.DeleteLoop, opts...))
	mux.Handle(ListRecentTracksProcedure, connect.NewUnaryHandler(ListRecentTracksProcedure, svc.ListRecentTracks, opts...))
	mux.Handle(AddRecentTrackProcedure, connect.NewUnaryHandler(AddRecentTrackProcedure, svc.AddRecentTrack, opts...))
	return "/" + LoopServiceName + "/", mux
}

// GetLoop returns the saved loop row, if any.
func (s *LoopService) GetLoop(
	ctx context.Context,
	req *connect.Request[GetLoopRequest],
) (*connect.Response[GetLoopResponse], error) {
	if err := requireIDs(req.Msg.SpotifyUserID, req.Msg.TrackID); err != nil {
		return nil, err
	}
	data, err := s.config.Loops.GetLoop(ctx, req.Msg.SpotifyUserID, req.Msg.TrackID)
	if err != nil {
		return nil, internal("get loop", err)
	}
	return connect.NewResponse(&GetLoopResponse{Loop: data}), nil
}

// SaveLoop replaces the saved loop row and echoes it.
func (s *LoopService) SaveLoop(
	ctx context.Context,
	req *connect.Request[SaveLoopRequest],
) (*connect.Response[SaveLoopResponse], error) {
	if err := requireIDs(req.Msg.SpotifyUserID, req.Msg.TrackID); err != nil {
		return nil, err
	}
	data, err := s.config.Loops.UpsertLoop(ctx, req.Msg.SpotifyUserID, req.Msg.TrackID, req.Msg.Record)
	if err != nil {
		return nil, internal("save loop", err)
	}
	return connect.NewResponse(&SaveLoopResponse{Loop: data}), nil
}

// ListLoops returns every loop the user has saved.
func (s *LoopService) ListLoops(
	ctx context.Context,
	req *connect.Request[ListLoopsRequest],
) (*connect.Response[ListLoopsResponse], error) {
	if req.Msg.SpotifyUserID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("spotifyUserId required"))
	}
	if s.config.Lister == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("listing loops is not supported"))
	}
	loops, err := s.config.Lister.ListLoops(ctx, req.Msg.SpotifyUserID)
	if err != nil {
		return nil, internal("list loops", err)
	}
	if loops == nil {
		loops = []storage.LoopData{}
	}
	return connect.NewResponse(&ListLoopsResponse{Loops: loops}), nil
}

// DeleteLoop removes a saved loop row.
func (s *LoopService) DeleteLoop(
	ctx context.Context,
	req *connect.Request[DeleteLoopRequest],
) (*connect.Response[DeleteLoopResponse], error) {
	if err := requireIDs(req.Msg.SpotifyUserID, req.Msg.TrackID); err != nil {
		return nil, err
	}
	deleted, err := s.config.Loops.DeleteLoop(ctx, req.Msg.SpotifyUserID, req.Msg.TrackID)
	if err != nil {
		return nil, internal("delete loop", err)
	}
	return connect.NewResponse(&DeleteLoopResponse{Deleted: deleted}), nil
}

// ListRecentTracks returns the user's recently played tracks.
func (s *LoopService) ListRecentTracks(
	ctx context.Context,
	req *connect.Request[ListRecentTracksRequest],
) (*connect.Response[ListRecentTracksResponse], error) {
	if req.Msg.SpotifyUserID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("spotifyUserId required"))
	}
	limit := req.Msg.Limit
	if limit <= 0 || limit > s.config.RecentLimit {
		limit = s.config.RecentLimit
	}
	tracks, err := s.config.Recent.ListRecentTracks(ctx, req.Msg.SpotifyUserID, limit)
	if err != nil {
		return nil, internal("list recent tracks", err)
	}
	return connect.NewResponse(&ListRecentTracksResponse{Tracks: tracks}), nil
}

// AddRecentTrack records a played track and returns the updated list.
func (s *LoopService) AddRecentTrack(
	ctx context.Context,
	req *connect.Request[AddRecentTrackRequest],
) (*connect.Response[AddRecentTrackResponse], error) {
	if req.Msg.SpotifyUserID == "" || req.Msg.Track.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("spotifyUserId and track required"))
	}
	err := s.config.Recent.AddRecentTrack(ctx, req.Msg.SpotifyUserID, req.Msg.Track)
	s.config.Metrics.ObserveRecentAdd(err)
	if err != nil {
		return nil, internal("add recent track", err)
	}
	tracks, err := s.config.Recent.ListRecentTracks(ctx, req.Msg.SpotifyUserID, s.config.RecentLimit)
	if err != nil {
		return nil, internal("list recent tracks", err)
	}
	return connect.NewResponse(&AddRecentTrackResponse{Tracks: tracks}), nil
}

func requireIDs(userID, trackID string) error {
	if userID == "" || trackID == "" {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("spotifyUserId and trackId required"))
	}
	return nil
}

// internal logs err and hides its detail from the caller.
func internal(op string, err error) error {
	zlog.Error().Msgf("Failed to %s: %v", op, err)
	return connect.NewError(connect.CodeInternal, errors.Newf("failed to %s", op))
}
