package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/overlay"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/service"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/response"
)

// Options configures SSE streams.
type Options struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
}

// Handler handles HTTP requests for the overlay service.
type Handler struct {
	hub       *hub.Hub
	svc       service.OverlayService
	transport pubsub.Transport
	opts      Options
}

// NewHandler creates a new HTTP handler. transport may be nil.
func NewHandler(h *hub.Hub, svc service.OverlayService, transport pubsub.Transport, opts Options) *Handler {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 15 * time.Second
	}
	return &Handler{
		hub:       h,
		svc:       svc,
		transport: transport,
		opts:      opts,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	r.GET("/events", h.GlobalEvents)
	r.GET("/events/:streamer_id", h.StreamerEvents)

	api := r.Group("/api/v1")
	{
		api.POST("/events", h.PublishGlobalEvent)

		streamers := api.Group("/streamers/:streamer_id")
		{
			streamers.GET("/overlay", h.GetOverlay)
			streamers.POST("/events", h.PublishStreamerEvent)
			streamers.POST("/avatars/:user_id/activity", h.RecordActivity)
			streamers.PUT("/avatars/:user_id/state", h.SetAvatarState)
			streamers.DELETE("/avatars/:user_id", h.DespawnAvatar)
		}
	}
}

// Health reports liveness and whether the transport is usable.
func (h *Handler) Health(c *gin.Context) {
	available := h.transport != nil && h.transport.Available()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "transport": available})
}

// GlobalEvents streams events of the global channel.
func (h *Handler) GlobalEvents(c *gin.Context) {
	h.stream(c, "")
}

// StreamerEvents streams events of one streamer.
func (h *Handler) StreamerEvents(c *gin.Context) {
	streamerID := c.Param("streamer_id")
	if !service.ValidID(streamerID) {
		response.BadRequest(c, service.ErrInvalidStreamerID.Error())
		return
	}
	h.stream(c, streamerID)
}

func (h *Handler) stream(c *gin.Context, streamerID string) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if _, ok := c.Writer.(http.Flusher); !ok {
		response.StreamingUnsupported(c)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-store")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	w := newStreamWriter(c.Writer, h.opts.WriteTimeout)
	if _, err := w.Write([]byte(": connected\n\n")); err != nil {
		l.Debug().Err(err).Msg("sse client gone before subscribe")
		return
	}

	conn := h.hub.Subscribe(streamerID, w)
	defer h.hub.Unsubscribe(conn)
	l.Info().Str(log.FieldConnID, conn.ID).Msg("sse stream opened")

	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Closed():
			return
		case <-ticker.C:
			if err := conn.Comment("heartbeat"); err != nil {
				l.Debug().Err(err).Str(log.FieldConnID, conn.ID).Msg("sse heartbeat failed")
				return
			}
		}
	}
}

// GetOverlay returns the overlay snapshot of a streamer.
func (h *Handler) GetOverlay(c *gin.Context) {
	ctx := c.Request.Context()
	streamerID := c.Param("streamer_id")

	snap, err := h.svc.GetOverlay(ctx, streamerID)
	if err != nil {
		h.writeError(c, err, "failed to get overlay")
		return
	}
	response.Success(c, snap)
}

// PublishGlobalEvent publishes an event to every global stream.
func (h *Handler) PublishGlobalEvent(c *gin.Context) {
	h.publish(c, "")
}

// PublishStreamerEvent publishes an event to one streamer's streams.
func (h *Handler) PublishStreamerEvent(c *gin.Context) {
	h.publish(c, c.Param("streamer_id"))
}

func (h *Handler) publish(c *gin.Context, streamerID string) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind publish event request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.svc.PublishEvent(ctx, streamerID, req.Event, req.Data); err != nil {
		h.writeError(c, err, "failed to publish event")
		return
	}
	c.Status(http.StatusAccepted)
}

// RecordActivity marks an avatar active, spawning it if needed.
func (h *Handler) RecordActivity(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("user_id")

	spawned, err := h.svc.RecordActivity(ctx, c.Param("streamer_id"), userID)
	if err != nil {
		h.writeError(c, err, "failed to record activity")
		return
	}
	response.Success(c, domain.ActivityResponse{UserID: userID, Spawned: spawned})
}

// SetAvatarState changes the animation state of an avatar.
func (h *Handler) SetAvatarState(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.AvatarStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind avatar state request")
		response.BadRequest(c, err.Error())
		return
	}

	err := h.svc.SetAvatarState(ctx, c.Param("streamer_id"), c.Param("user_id"), overlay.AvatarState(req.State))
	if err != nil {
		h.writeError(c, err, "failed to set avatar state")
		return
	}
	c.Status(http.StatusNoContent)
}

// DespawnAvatar removes an avatar.
func (h *Handler) DespawnAvatar(c *gin.Context) {
	ctx := c.Request.Context()

	removed, err := h.svc.DespawnAvatar(ctx, c.Param("streamer_id"), c.Param("user_id"))
	if err != nil {
		h.writeError(c, err, "failed to despawn avatar")
		return
	}
	if !removed {
		response.NotFound(c, service.ErrAvatarNotActive.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	l := log.Ctx(c.Request.Context())

	switch {
	case errors.Is(err, service.ErrInvalidStreamerID),
		errors.Is(err, service.ErrInvalidUserID),
		errors.Is(err, service.ErrInvalidEvent),
		errors.Is(err, service.ErrInvalidAvatarState),
		errors.Is(err, service.ErrInvalidPayload):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrAvatarNotActive):
		response.NotFound(c, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		response.Timeout(c, "overlay state is still loading")
	default:
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}
