package http

import (
	"github.com/gin-gonic/gin"

	"ragpool/internal/bootstrap"
	"ragpool/internal/transport/http/handler"
	"ragpool/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	documentHandler := handler.NewDocumentHandler(app.Pool, app.Deletion)
	sessionHandler := handler.NewSessionHandler(app.SessionRepo, app.Deletion)
	contextHandler := handler.NewContextHandler(app.Context)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	sessions := v1.Group("/sessions")
	sessions.POST("", sessionHandler.Create)
	sessions.GET("", sessionHandler.List)
	sessions.DELETE("/:id", sessionHandler.Delete)

	documents := v1.Group("/documents")
	documents.POST("", documentHandler.Upload)
	documents.GET("", documentHandler.List)
	documents.GET("/orphans", documentHandler.Orphans)
	documents.POST("/:id/activate", documentHandler.Activate)
	documents.POST("/:id/deactivate", documentHandler.Deactivate)
	documents.DELETE("/:id", documentHandler.Delete)

	v1.POST("/context", contextHandler.Assemble)

	return router
}
