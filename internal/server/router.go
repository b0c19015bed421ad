package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poker-table/internal/middleware"
	"poker-table/internal/session"
	"poker-table/internal/store"
)

const defaultHandsLimit = 20

// Tables is the read side of the session registry.
type Tables interface {
	Table(ctx context.Context, tableID string) (session.TableInfo, error)
	Tables(ctx context.Context) []session.TableInfo
}

// HandHistory serves recently finished hands.
type HandHistory interface {
	RecentHands(ctx context.Context, tableID string, limit int) ([]store.HandResult, error)
}

// Options wires the router. States, History and Health are optional.
type Options struct {
	Environment    string
	AllowedOrigins []string

	Tables    Tables
	WebSocket gin.HandlerFunc
	Limiter   *middleware.RateLimiter
	States    store.StateReader
	History   HandHistory
	Health    func(ctx context.Context) error
	Log       *zap.Logger
}

type tableSummary struct {
	TableID     string `json:"tableId"`
	Status      string `json:"status"`
	HandNumber  int    `json:"handNumber"`
	Players     int    `json:"players"`
	Connections int    `json:"connections"`
}

type routes struct {
	opts Options
	log  *zap.Logger
}

// NewRouter builds the HTTP surface: the websocket endpoint, a health check
// and the read-only table API.
func NewRouter(opts Options) *gin.Engine {
	if opts.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	rt := &routes{opts: opts, log: opts.Log.Named("http")}

	r := gin.New()
	r.Use(gin.Recovery(), rt.requestLogger())
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	r.GET("/health", rt.health)
	r.GET("/ws", opts.WebSocket)

	api := r.Group("/api")
	if opts.Limiter != nil {
		api.Use(opts.Limiter.Gin())
	}
	{
		api.GET("/tables", rt.listTables)
		api.GET("/tables/:id", rt.getTable)
		if opts.History != nil {
			api.GET("/tables/:id/hands", rt.recentHands)
		}
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        86400 * time.Second,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (rt *routes) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		rt.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}

func (rt *routes) health(c *gin.Context) {
	if rt.opts.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := rt.opts.Health(ctx); err != nil {
			rt.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tables": len(rt.opts.Tables.Tables(c.Request.Context()))})
}

func (rt *routes) listTables(c *gin.Context) {
	infos := rt.opts.Tables.Tables(c.Request.Context())
	results := make([]tableSummary, 0, len(infos))
	for _, info := range infos {
		results = append(results, tableSummary{
			TableID:     info.TableID,
			Status:      info.Status,
			HandNumber:  info.HandNumber,
			Players:     info.Players,
			Connections: info.Connections,
		})
	}
	c.JSON(http.StatusOK, results)
}

// getTable serves the public state of a live table, falling back to the last
// mirrored snapshot when the table is not hosted here.
func (rt *routes) getTable(c *gin.Context) {
	tableID := c.Param("id")
	info, err := rt.opts.Tables.Table(c.Request.Context(), tableID)
	if err == nil {
		c.JSON(http.StatusOK, info.State)
		return
	}
	if !errors.Is(err, session.ErrTableNotFound) {
		rt.log.Error("read live table", zap.String("table_id", tableID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	if rt.opts.States != nil {
		state, err := rt.opts.States.LatestState(c.Request.Context(), tableID)
		if err != nil {
			rt.log.Error("read stored table", zap.String("table_id", tableID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
			return
		}
		if state != nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", state)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Table not found"})
}

func (rt *routes) recentHands(c *gin.Context) {
	limit := defaultHandsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	hands, err := rt.opts.History.RecentHands(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		rt.log.Error("read hand history", zap.String("table_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	if hands == nil {
		hands = []store.HandResult{}
	}
	c.JSON(http.StatusOK, hands)
}
