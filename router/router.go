package router

import (
	"agendazap/config"
	"agendazap/controllers"
	"agendazap/middleware"

	"github.com/gin-gonic/gin"
)

// Initialize wires all routes and middlewares. Webhook routes are open to
// the gateway (per-instance shared secret checked in the handler); the
// lifecycle API is consumed by the platform's UI layer, which carries the
// tenant scope.
func Initialize(r *gin.Engine, cfg config.Configuration) {
	_ = cfg

	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")

	// Gateway webhook - one endpoint per instance
	api.POST("/webhook/:instanceRef", controllers.WebhookUpdate)

	// Instance lifecycle
	api.POST("/instances", Logger(), controllers.CreateInstance)
	api.GET("/instances", Logger(), controllers.ListInstances)
	api.GET("/instances/:id", Logger(), controllers.GetInstance)
	api.POST("/instances/:id/connect", Logger(), controllers.RequestConnection)
	api.GET("/instances/:id/code", controllers.GetConnectionCode)
	api.POST("/instances/:id/cancel-connect", Logger(), controllers.CancelConnection)
	api.POST("/instances/:id/disconnect", Logger(), controllers.DisconnectInstance)
	api.POST("/instances/:id/refresh-status", Logger(), controllers.RefreshInstanceStatus)
	api.DELETE("/instances/:id", Logger(), controllers.DeleteInstance)

	// Conversations
	api.GET("/instances/:id/conversations", Logger(), controllers.ListConversations)
	api.GET("/conversations/:id/messages", Logger(), controllers.ListMessages)
	api.POST("/conversations/:id/messages", Logger(), controllers.SendConversationMessage)

	// Recovery / admin
	admin := api.Group("/admin")
	admin.GET("/recovery/stuck", Logger(), controllers.ListStuckInstances)
	admin.POST("/recovery/reset/:id", Logger(), controllers.ResetInstance)
	admin.POST("/recovery/emergency-cleanup", Logger(), controllers.EmergencyCleanup)
	admin.POST("/recovery/flag/:id", Logger(), controllers.FlagInstance)
	admin.POST("/instances/:id/status", Logger(), controllers.SetAdminStatus)
}
