package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gather/internal/adapters/auth"
	"github.com/dkeye/gather/internal/adapters/signal"
	"github.com/dkeye/gather/internal/app/orch"
	"github.com/dkeye/gather/internal/config"
	"github.com/dkeye/gather/internal/domain"
)

// TokenVerifier resolves a bearer token to the uid it was issued for.
type TokenVerifier interface {
	Verify(token string) (domain.UserID, error)
}

type Deps struct {
	Orch     *orch.Orchestrator
	Signal   *signal.SignalWSController
	Verifier TokenVerifier
	// TelemetryReady reports cache health on /healthz; nil means no cache.
	TelemetryReady func() bool
}

const uidKey = "uid"

// BearerAuth rejects requests without a valid bearer token and stores the
// caller's uid on the context.
func BearerAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := v.Verify(auth.BearerToken(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(uidKey, uid)
		c.Next()
	}
}

func callerOf(c *gin.Context) domain.UserID {
	uid, _ := c.Get(uidKey)
	id, _ := uid.(domain.UserID)
	return id
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if deps.TelemetryReady != nil {
			body["telemetry"] = deps.TelemetryReady()
		}
		c.JSON(http.StatusOK, body)
	})
	if m := deps.Orch.Metrics; m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		deps.Signal.HandleSignal(ctx, c)
	})

	h := &readHandlers{orch: deps.Orch}
	read := api.Group("", BearerAuth(deps.Verifier))
	read.GET("/rooms/:roomIndex/players", h.playersInRoom)
	read.GET("/player-counts", h.playerCounts)
	read.GET("/spaces/:spaceId/presence", h.requireMember, h.presence)
	read.GET("/spaces/:spaceId/activity", h.requireMember, h.activity)
	read.GET("/spaces/:spaceId/rooms/:roomIndex/heatmap", h.requireMember, h.heatmap)
	read.GET("/users/:uid/last-seen", h.lastSeen)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
