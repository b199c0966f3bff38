package http

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"invoicechat/internal/bootstrap"
	"invoicechat/internal/config"
	mysqlClient "invoicechat/internal/platform/mysql"
	"invoicechat/internal/transport/http/handler"
	"invoicechat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)

	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxUploadBytes() + 1<<20
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.Metrics(app.Metrics),
		cors.New(corsConfig(cfg.App.CORSOrigins)),
	)

	healthHandler := handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, dependencyChecks(app))
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))

	documents := router.Group("/documents")
	if cfg.Auth.Mode == config.AuthModeJWT {
		documents.Use(middleware.BearerIdentity(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))
	}
	handler.NewDocumentHandler(app.Documents, cfg.MaxUploadBytes()).Register(documents)

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func dependencyChecks(app *bootstrap.App) []handler.DependencyCheck {
	checks := []handler.DependencyCheck{{
		Name: "mysql",
		Probe: func(ctx context.Context) error {
			return mysqlClient.Ping(ctx, app.MySQL)
		},
	}}
	if app.Redis != nil {
		checks = append(checks, handler.DependencyCheck{
			Name: "redis",
			Probe: func(ctx context.Context) error {
				return app.Redis.Ping(ctx).Err()
			},
		})
	}
	if app.MQConn != nil {
		checks = append(checks, handler.DependencyCheck{
			Name: "rabbitmq",
			Probe: func(context.Context) error {
				if app.MQConn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			},
		})
	}
	return checks
}
