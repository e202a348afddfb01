package server

import (
  "github.com/gin-gonic/gin"
  "github.com/gin-contrib/cors"
  "github.com/sqlmentor/sqlmentor-backend/internal/handlers"
  "github.com/sqlmentor/sqlmentor-backend/internal/middleware"
)

type RouterConfig struct {
  AuthHandler         *handlers.AuthHandler
  AuthMiddleware      *middleware.AuthMiddleware
  UserHandler         *handlers.UserHandler
  PracticeHandler     *handlers.PracticeHandler
  CompetitionHandler  *handlers.CompetitionHandler
  SubscriptionHandler *handlers.SubscriptionHandler
  BillingHandler      *handlers.BillingHandler
  DashboardHandler    *handlers.DashboardHandler
  CertificateHandler  *handlers.CertificateHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  // Cors
  router.Use(cors.New(cors.Config{
    AllowOrigins: []string{
      "http://localhost:80",
      "http://localhost:3000",
      "http://localhost:5174",
    },
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "Stripe-Signature"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  api := router.Group("/api")
  {
    api.POST("/auth/register", cfg.AuthHandler.Register)
    api.POST("/auth/login", cfg.AuthHandler.Login)
    // Stripe calls this directly; the signature check is the gate.
    api.POST("/stripe/webhook", cfg.BillingHandler.Webhook)
  }

// ===============
// || Protected ||
// ===============
  protected := router.Group("/api")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  // Auth
  protected.POST("/auth/refresh", cfg.AuthHandler.Refresh)
  protected.POST("/auth/logout", cfg.AuthHandler.Logout)
  protected.GET("/auth/me", cfg.UserHandler.GetMe)
  // SQL practice
  protected.POST("/sql/generate-schema", cfg.PracticeHandler.GenerateSchema)
  protected.POST("/sql/populate-tables", cfg.PracticeHandler.PopulateTables)
  protected.POST("/sql/create-session", cfg.PracticeHandler.CreateSession)
  protected.POST("/sql/question-generator", cfg.PracticeHandler.GenerateQuestions)
  protected.POST("/sql/iscorrect", cfg.PracticeHandler.CheckAnswer)
  protected.POST("/sql/execute", cfg.PracticeHandler.ExecuteQuery)
  protected.POST("/sql/teardown", cfg.PracticeHandler.Teardown)
  protected.GET("/sql/sessions", cfg.PracticeHandler.ListSessions)
  protected.GET("/sql/schemas", cfg.PracticeHandler.ListSchemas)
  // Competition
  protected.POST("/competition/start", cfg.CompetitionHandler.Start)
  protected.POST("/competition/submit", cfg.CompetitionHandler.SubmitRound)
  protected.GET("/competition/history", cfg.CompetitionHandler.History)
  // Billing
  protected.POST("/stripe/create-checkout-session", cfg.BillingHandler.CreateCheckoutSession)
  protected.GET("/stripe/user-subscription", cfg.SubscriptionHandler.GetUserSubscription)
  protected.GET("/stripe/feature-check/:feature", cfg.SubscriptionHandler.FeatureCheck)
  // Dashboard
  protected.GET("/dashboard/stats", cfg.DashboardHandler.Stats)
  // Certificates
  protected.GET("/certificates/session/:id", cfg.CertificateHandler.SessionCertificate)
  protected.GET("/certificates/master", cfg.CertificateHandler.MasterCertificate)

  return router
}
