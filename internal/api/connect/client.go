package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/loopbox/internal/domain/loop"
	"github.com/osa030/loopbox/internal/domain/track"
	"github.com/osa030/loopbox/internal/infra/storage"
)

// Client calls a remote LoopService. It satisfies the loop and recent
// track repositories used by the practice session.
type Client struct {
	getLoop          *connect.Client[GetLoopRequest, GetLoopResponse]
	saveLoop         *connect.Client[SaveLoopRequest, SaveLoopResponse]
	listLoops        *connect.Client[ListLoopsRequest, ListLoopsResponse]
	deleteLoop       *connect.Client[DeleteLoopRequest, DeleteLoopResponse]
	listRecentTracks *connect.Client[ListRecentTracksRequest, ListRecentTracksResponse]
	addRecentTrack   *connect.Client[AddRecentTrackRequest, AddRecentTrackResponse]
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		getLoop:          connect.NewClient[GetLoopRequest, GetLoopResponse](httpClient, baseURL+GetLoopProcedure, opts...),
		saveLoop:         connect.NewClient[SaveLoopRequest, SaveLoopResponse](httpClient, baseURL+SaveLoopProcedure, opts...),
		listLoops:        connect.NewClient[ListLoopsRequest, ListLoopsResponse](httpClient, baseURL+ListLoopsProcedure, opts...),
		deleteLoop:       connect.NewClient[DeleteLoopRequest, DeleteLoopResponse](httpClient, baseURL+DeleteLoopProcedure, opts...),
		listRecentTracks: connect.NewClient[ListRecentTracksRequest, ListRecentTracksResponse](httpClient, baseURL+ListRecentTracksProcedure, opts...),
		addRecentTrack:   connect.NewClient[AddRecentTrackRequest, AddRecentTrackResponse](httpClient, baseURL+AddRecentTrackProcedure, opts...),
	}
}

// GetLoop returns the saved row, or nil when nothing is saved.
func (c *Client) GetLoop(ctx context.Context, userID, trackID string) (*storage.LoopData, error) {
	res, err := c.getLoop.CallUnary(ctx, connect.NewRequest(&GetLoopRequest{
		SpotifyUserID: userID,
		TrackID:       trackID,
	}))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get loop %s/%s", userID, trackID)
	}
	return res.Msg.Loop, nil
}

// UpsertLoop replaces the saved row and returns it.
func (c *Client) UpsertLoop(ctx context.Context, userID, trackID string, rec loop.Record) (*storage.LoopData, error) {
	res, err := c.saveLoop.CallUnary(ctx, connect.NewRequest(&SaveLoopRequest{
		SpotifyUserID: userID,
		TrackID:       trackID,
		Record:        rec,
	}))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to save loop %s/%s", userID, trackID)
	}
	return res.Msg.Loop, nil
}

// ListLoops returns every loop the user has saved.
func (c *Client) ListLoops(ctx context.Context, userID string) ([]storage.LoopData, error) {
	res, err := c.listLoops.CallUnary(ctx, connect.NewRequest(&ListLoopsRequest{SpotifyUserID: userID}))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list loops for %s", userID)
	}
	return res.Msg.Loops, nil
}

// DeleteLoop removes a saved row and reports whether it existed.
func (c *Client) DeleteLoop(ctx context.Context, userID, trackID string) (bool, error) {
	res, err := c.deleteLoop.CallUnary(ctx, connect.NewRequest(&DeleteLoopRequest{
		SpotifyUserID: userID,
		TrackID:       trackID,
	}))
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete loop %s/%s", userID, trackID)
	}
	return res.Msg.Deleted, nil
}

// LoadLoop returns the saved record, or nil when nothing is saved.
func (c *Client) LoadLoop(ctx context.Context, userID, trackID string) (*loop.Record, error) {
	data, err := c.GetLoop(ctx, userID, trackID)
	if err != nil || data == nil {
		return nil, err
	}
	return &data.Record, nil
}

// SaveLoop stores rec for (userID, trackID).
func (c *Client) SaveLoop(ctx context.Context, userID, trackID string, rec loop.Record) error {
	_, err := c.UpsertLoop(ctx, userID, trackID, rec)
	return err
}

// ListRecentTracks returns up to limit recent tracks, most recent first.
func (c *Client) ListRecentTracks(ctx context.Context, userID string, limit int) ([]track.Track, error) {
	res, err := c.listRecentTracks.CallUnary(ctx, connect.NewRequest(&ListRecentTracksRequest{
		SpotifyUserID: userID,
		Limit:         limit,
	}))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list recent tracks for %s", userID)
	}
	return res.Msg.Tracks, nil
}

// AddRecentTrack records t as the user's latest track.
func (c *Client) AddRecentTrack(ctx context.Context, userID string, t track.Track) error {
	_, err := c.addRecentTrack.CallUnary(ctx, connect.NewRequest(&AddRecentTrackRequest{
		SpotifyUserID: userID,
		Track:         t,
	}))
	return errors.Wrapf(err, "failed to add recent track %s", t.ID)
}
