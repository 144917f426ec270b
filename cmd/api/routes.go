package main

import (
	"github.com/gin-gonic/gin"

	"github.com/husainf4l/ravoxai/internal/auth"
	"github.com/husainf4l/ravoxai/internal/httpapi"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", h.Healthz)

	// Token issuance is gated by the bootstrap secret inside the handler.
	r.POST("/api/v1/auth/token", h.IssueToken)

	// Platform lifecycle callbacks. The forwarder authenticates with a
	// service-role token.
	webhooks := r.Group("/webhooks")
	webhooks.Use(authMW, auth.RequireAnyRole(auth.RoleService))
	{
		webhooks.POST("/voice/events", h.VoiceWebhook)
	}

	v1 := r.Group("/api/v1")
	v1.Use(authMW)
	{
		v1.GET("/status", h.StatusCheck)

		callGroup := v1.Group("/calls")
		{
			read := auth.RequireAnyRole(auth.RoleOperator, auth.RoleService)

			callGroup.POST("", auth.RequireAnyRole(auth.RoleOperator), h.CreateCall)
			callGroup.GET("", read, h.ListCalls)
			callGroup.GET("/:call_id", read, h.GetCall)
			callGroup.GET("/:call_id/events", read, h.CallEvents)

			// Explicit transitions and conversation updates come from the
			// media/agent pipeline or an admin, not regular operators.
			callGroup.PATCH("/:call_id", auth.RequireAnyRole(auth.RoleService), h.UpdateCall)

			callGroup.POST("/:call_id/media", auth.RequireAnyRole(auth.RoleOperator, auth.RoleService), h.AttachMedia)
			callGroup.GET("/:call_id/media", read, h.MediaSummary)
			callGroup.GET("/:call_id/recording-url", read, h.RecordingURL)
		}

		reports := v1.Group("/reports")
		reports.Use(auth.RequireAnyRole(auth.RoleOperator))
		{
			reports.GET("/calls-summary", h.CallsSummaryReport)
		}

		// Manual maintenance triggers are admin-only.
		tasks := v1.Group("/tasks")
		tasks.Use(auth.RequireAnyRole(auth.RoleAdmin))
		{
			tasks.GET("", h.ListTasks)
			tasks.POST("/sweep", h.RunSweep)
			tasks.POST("/cleanup", h.RunCleanup)
			tasks.POST("/health-check", h.RunHealthCheck)
		}
	}
}
