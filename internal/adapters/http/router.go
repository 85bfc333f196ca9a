package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Roulette/internal/adapters/signal"
	"github.com/dkeye/Roulette/internal/config"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// PresenceMirror is the shared directory other instances publish into.
type PresenceMirror interface {
	Snapshot(ctx context.Context) (map[domain.UserID]string, error)
}

// SetupRouter builds the HTTP surface. mirror may be nil.
func SetupRouter(ctx context.Context, cfg *config.Config, ctrl *signal.SignalWSController, m *metrics.Metrics, mirror PresenceMirror) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("RouletteSessions", store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := r.Group("/api")
	o := ctrl.Orch

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"online":      o.Presence.Count(),
			"waiting":     o.Queue.Len(),
			"sessions":    o.Registry.OpenCount(),
			"connections": ctrl.Connections(),
		})
	})

	api.GET("/ice", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ice_servers": o.ICEServers})
	})

	api.GET("/presence", func(c *gin.Context) {
		msg := signal.NewPresenceMessage(o.PresenceSnapshot())
		if mirror == nil {
			c.JSON(http.StatusOK, msg)
			return
		}
		resp := gin.H{"type": msg.Type, "count": msg.Count, "users": msg.Users}
		shared, err := mirror.Snapshot(c.Request.Context())
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("presence mirror read")
		} else {
			resp["mirrored"] = len(shared)
		}
		c.JSON(http.StatusOK, resp)
	})

	authed := api.Group("/", IdentityMiddleware(cfg.Auth.JWTSecret))

	authed.GET("/me", func(c *gin.Context) {
		uid := c.GetString(signal.ClientTokenKey)
		name, online := o.Presence.Lookup(domain.UserID(uid))
		c.JSON(http.StatusOK, gin.H{"id": uid, "name": name, "online": online})
	})

	authed.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("user", c.GetString(signal.ClientTokenKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
