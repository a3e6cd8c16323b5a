package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/piljoong/moyim/internal/adapters/signal"
	"github.com/piljoong/moyim/internal/app/orch"
	"github.com/piljoong/moyim/internal/config"
	"github.com/piljoong/moyim/internal/domain"
)

// ClientTokenMiddleware hands every browser a stable token it can use
// as its clientId. The engine itself trusts whatever clientId arrives
// in the init command; the cookie just gives first-time visitors one.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = "client_" + uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MoyimSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	ctrl := signal.NewController(o, cfg)
	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("token", c.GetString("client_token")).Msg("ws endpoint hit")
		ctrl.Handle(ctx, c)
	})

	// Read-only views; all mutation goes through the WS engine.

	// GET /api/departments — list departments
	api.GET("/departments", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"departments": o.Departments.List()})
	})

	// GET /api/departments/:name/members — membership snapshot
	api.GET("/departments/:name/members", func(c *gin.Context) {
		name := domain.DepartmentName(c.Param("name"))
		c.JSON(http.StatusOK, o.Departments.Members(name))
	})

	// GET /api/departments/:name/votes?year=&month= — ledger snapshot
	api.GET("/departments/:name/votes", func(c *gin.Context) {
		name := domain.DepartmentName(c.Param("name"))
		year, _ := strconv.Atoi(c.Query("year"))
		month, _ := strconv.Atoi(c.Query("month"))
		c.JSON(http.StatusOK, o.Departments.AllVotes(name, year, month))
	})

	return r
}
