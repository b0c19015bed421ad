package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"poker-table/engine"
	"poker-table/internal/auth"
	"poker-table/internal/middleware"
	"poker-table/internal/protocol"
	"poker-table/internal/session"
	"poker-table/internal/validation"
)

const (
	sendBufferSize = 256
	joinTimeout    = 10 * time.Second
)

// Registry is the part of the session registry the transport needs.
type Registry interface {
	Join(ctx context.Context, tableID, playerID, name string, conn session.Conn) error
	Leave(tableID, connID string)
	Dispatch(tableID, connID string, msg protocol.Inbound)
}

type Config struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	// AllowedOrigins lists exact Origin values; empty accepts any origin.
	AllowedOrigins []string
}

// Handler upgrades /ws requests and wires each socket into the registry.
type Handler struct {
	registry Registry
	auth     *auth.Service
	limiter  *middleware.RateLimiter
	cfg      Config
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHandler(registry Registry, authService *auth.Service, limiter *middleware.RateLimiter, cfg Config, log *zap.Logger) *Handler {
	h := &Handler{
		registry: registry,
		auth:     authService,
		limiter:  limiter,
		cfg:      cfg,
		log:      log.Named("ws"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	h.log.Warn("rejected websocket origin", zap.String("origin", origin))
	return false
}

// Serve handles GET /ws?tableId=&playerId=&name=&token=.
func (h *Handler) Serve(c *gin.Context) {
	tableID := c.Query("tableId")
	playerID := c.Query("playerId")
	if err := validation.ValidateTableID(tableID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidatePlayerID(playerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, err := validation.ValidateDisplayName(c.DefaultQuery("name", playerID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.Authorize(c.Query("token"), playerID); err != nil {
		h.log.Info("unauthorized websocket", zap.String("player_id", playerID), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.New().String()
	client := &Client{
		id:       connID,
		tableID:  tableID,
		playerID: playerID,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		cfg:      h.cfg,
		registry: h.registry,
		limiter:  h.limiter,
		closing:  make(chan struct{}),
		log: h.log.With(
			zap.String("table_id", tableID),
			zap.String("player_id", playerID),
			zap.String("conn_id", connID)),
	}
	go client.WritePump()

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	if err := h.registry.Join(ctx, tableID, playerID, name, client); err != nil {
		client.log.Info("join rejected", zap.Error(err))
		client.Close(websocket.ClosePolicyViolation, closeReason(err))
		return
	}

	go client.ReadPump()
}

func closeReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrTableFull):
		return "table full"
	case errors.Is(err, session.ErrTableUnavailable):
		return "table hosted elsewhere"
	case errors.Is(err, session.ErrRegistryClosed):
		return "server shutting down"
	default:
		return err.Error()
	}
}
