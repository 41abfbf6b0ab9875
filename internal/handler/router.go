package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-portal-api/internal/middleware"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/service"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// Routes groups everything RegisterRoutes mounts.
type Routes struct {
	Auth           *AuthHandler
	Interviews     *InterviewHandler
	Tasks          *TaskHandler
	Events         *EventHandler
	Notifications  *NotificationHandler
	Metrics        *MetricsHandler
	Tokens         tokenValidator
	MetricsService *service.MetricsService
}

// RegisterRoutes mounts probes and metrics at the root and the API under prefix.
func RegisterRoutes(r *gin.Engine, prefix string, routes Routes) {
	r.Use(middleware.Metrics(routes.MetricsService, "/metrics"))

	r.GET("/health", routes.Metrics.Health)
	r.GET("/ready", routes.Metrics.Ready)
	r.GET("/metrics", routes.Metrics.Prometheus)

	api := r.Group(prefix)
	api.POST("/auth/login", routes.Auth.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(routes.Tokens))
	authed.GET("/auth/me", routes.Auth.Me)
	authed.GET("/notifications", routes.Notifications.List)

	interviews := authed.Group("/interviews")
	interviews.GET("/tasks/me", routes.Tasks.MyTasks)

	queue := interviews.Group("/tasks/queue", middleware.RequireReviewer())
	queue.GET("", routes.Tasks.Queue)
	queue.GET("/export", routes.Tasks.ExportQueue)

	for _, domain := range []models.InterviewDomain{models.DomainHiring, models.DomainReadiness} {
		subject := interviews.Group("/" + domain.Slug() + "/:id")
		subject.GET("/task", routes.Tasks.Task(domain))
		subject.POST("/slots", routes.Interviews.PostSlots(domain))
		subject.POST("/slots/:slotId/confirm", routes.Interviews.ConfirmSlot(domain))
		subject.POST("/slots/:slotId/complete", routes.Interviews.CompleteSlot(domain))
		subject.POST("/slots/:slotId/cancel", routes.Interviews.CancelSlot(domain))
	}

	hiring := interviews.Group("/hiring/:id")
	hiring.POST("/recommendation", routes.Interviews.SaveRecommendation)

	readiness := interviews.Group("/readiness/:id")
	readiness.POST("/availability", routes.Interviews.SubmitAvailability)
	readiness.POST("/availability/:requestId/cancel", routes.Interviews.CancelAvailability)
	readiness.POST("/availability/:requestId/accept", routes.Interviews.AcceptAvailability)
	readiness.POST("/availability/:requestId/decline", routes.Interviews.DeclineAvailability)
	readiness.POST("/outcome", routes.Interviews.SetOutcome)
	readiness.POST("/slots/:slotId/complete-with-outcome", routes.Interviews.CompleteWithOutcome)

	admin := authed.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/events/dispatch", routes.Events.DispatchPending)
}
