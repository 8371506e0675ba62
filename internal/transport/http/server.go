package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"docchat/internal/bootstrap"
	"docchat/internal/transport/http/handler"
	"docchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	chatHandler := handler.NewChatHandler(app.Chats)
	connectionHandler := handler.NewConnectionHandler(app.Log, app.Chats, app.Connections, app.Deliverer)
	organizationHandler := handler.NewOrganizationHandler(app.Credentials)
	documentHandler := handler.NewDocumentHandler(app.Ingest)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	Register(v1, chatHandler, connectionHandler, organizationHandler, documentHandler)
	return router
}

// Register mounts the authenticated API on group.
func Register(
	group *gin.RouterGroup,
	chats *handler.ChatHandler,
	connections *handler.ConnectionHandler,
	organizations *handler.OrganizationHandler,
	documents *handler.DocumentHandler,
) {
	group.POST("/chats", chats.CreateChat)
	group.GET("/chats/:id", chats.GetChat)
	group.POST("/chats/:id/messages", chats.AppendMessage)
	group.GET("/documents/:id/chats", chats.ListChats)
	group.POST("/documents/:id/files/:fileId/ingest", documents.IngestFile)
	group.GET("/connections/stream", connections.Stream)
	group.PUT("/organizations/:id/credential", organizations.SetCredential)
}
