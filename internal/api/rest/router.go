// Package rest serves the loop and recent-track HTTP API with gin.
package rest

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/loopbox/internal/domain/loop"
	"github.com/osa030/loopbox/internal/domain/track"
	"github.com/osa030/loopbox/internal/infra/logger"
	"github.com/osa030/loopbox/internal/infra/metrics"
	"github.com/osa030/loopbox/internal/infra/storage"
)

// TokenHeader carries the shared API token.
const TokenHeader = "X-Api-Token"

// LoopStore reads and writes loop rows.
type LoopStore interface {
	GetLoop(ctx context.Context, userID, trackID string) (*storage.LoopData, error)
	UpsertLoop(ctx context.Context, userID, trackID string, rec loop.Record) (*storage.LoopData, error)
}

// RecentStore reads and writes recent tracks.
type RecentStore interface {
	ListRecentTracks(ctx context.Context, userID string, limit int) ([]track.Track, error)
	AddRecentTrack(ctx context.Context, userID string, t track.Track) error
}

// Options configures the router.
type Options struct {
	Loops       LoopStore
	Recent      RecentStore
	RecentLimit int                             // Defaults to storage.DefaultRecentLimit
	APIToken    string                          // Required on /api routes when set
	Health      func(ctx context.Context) error // Optional readiness probe
	Metrics     *metrics.Metrics
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = storage.DefaultRecentLimit
	}
	h := &handler{opts: opts}

	router := gin.New()
	router.Use(gin.Recovery(), requestLog(opts.Metrics), cors())

	router.GET("/health", h.health)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	api := router.Group("/api", tokenAuth(opts.APIToken))
	api.GET("/loop/:spotifyUserId/:trackId", h.getLoop)
	api.POST("/loop", h.saveLoop)
	api.GET("/recent-tracks/:spotifyUserId", h.listRecent)
	api.POST("/recent-tracks", h.addRecent)
	return router
}

type handler struct {
	opts Options
}

func (h *handler) health(c *gin.Context) {
	if h.opts.Health != nil {
		if err := h.opts.Health(c.Request.Context()); err != nil {
			zlog.Warn().Msgf("health check failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) getLoop(c *gin.Context) {
	userID, trackID := c.Param("spotifyUserId"), c.Param("trackId")

	data, err := h.opts.Loops.GetLoop(c.Request.Context(), userID, trackID)
	if err != nil {
		zlog.Error().Msgf("Get loop data error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch loop data"})
		return
	}
	if data == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *handler) saveLoop(c *gin.Context) {
	req, err := decodeSaveLoop(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.SpotifyUserID == "" || req.TrackID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spotifyUserId and trackId required"})
		return
	}

	ctx := c.Request.Context()
	existing, err := h.opts.Loops.GetLoop(ctx, req.SpotifyUserID, req.TrackID)
	if err != nil {
		zlog.Error().Msgf("Save loop data error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save loop data"})
		return
	}
	var base loop.Record
	if existing != nil {
		base = existing.Record
	}

	data, err := h.opts.Loops.UpsertLoop(ctx, req.SpotifyUserID, req.TrackID, req.apply(base))
	if err != nil {
		zlog.Error().Msgf("Save loop data error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save loop data"})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *handler) listRecent(c *gin.Context) {
	userID := c.Param("spotifyUserId")
	limit := h.opts.RecentLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, limit)
	}

	tracks, err := h.opts.Recent.ListRecentTracks(c.Request.Context(), userID, limit)
	if err != nil {
		zlog.Error().Msgf("Get recent tracks error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recent tracks"})
		return
	}
	c.JSON(http.StatusOK, tracks)
}

type addRecentRequest struct {
	SpotifyUserID string       `json:"spotifyUserId"`
	Track         *track.Track `json:"track"`
}

func (h *handler) addRecent(c *gin.Context) {
	var req addRecentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.SpotifyUserID == "" || req.Track == nil || req.Track.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spotifyUserId and track required"})
		return
	}

	ctx := c.Request.Context()
	err := h.opts.Recent.AddRecentTrack(ctx, req.SpotifyUserID, *req.Track)
	h.opts.Metrics.ObserveRecentAdd(err)
	if err != nil {
		zlog.Error().Msgf("Save recent track error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save recent track"})
		return
	}

	tracks, err := h.opts.Recent.ListRecentTracks(ctx, req.SpotifyUserID, h.opts.RecentLimit)
	if err != nil {
		zlog.Error().Msgf("Get recent tracks error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recent tracks"})
		return
	}
	c.JSON(http.StatusOK, tracks)
}

func tokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api token"})
			return
		}
		c.Next()
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+TokenHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLog(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		elapsed := time.Since(start)
		m.ObserveRequest("rest", route, strconv.Itoa(code), elapsed)

		zlog.Debug().Fields(logger.Sanitize(map[string]any{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    code,
			"latency":   elapsed.String(),
			"api_token": c.GetHeader(TokenHeader),
		})).Msg("http request")
	}
}
