package main

import (
  "context"
  "errors"
  "fmt"
  "net/http"
  "os"
  "os/signal"
  "syscall"
  "time"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/utils"
  "github.com/sqlmentor/sqlmentor-backend/internal/db"
  "github.com/sqlmentor/sqlmentor-backend/internal/clients/openai"
  "github.com/sqlmentor/sqlmentor-backend/internal/clients/redis"
  "github.com/sqlmentor/sqlmentor-backend/internal/clients/stripe"
  "github.com/sqlmentor/sqlmentor-backend/internal/repos"
  "github.com/sqlmentor/sqlmentor-backend/internal/sandbox"
  "github.com/sqlmentor/sqlmentor-backend/internal/services"
  "github.com/sqlmentor/sqlmentor-backend/internal/handlers"
  "github.com/sqlmentor/sqlmentor-backend/internal/middleware"
  "github.com/sqlmentor/sqlmentor-backend/internal/server"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
  refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
  sandboxDir := utils.GetEnv("SANDBOX_DIR", "/tmp/sqlmentor-sandboxes", log)
  defaultPlan := utils.GetEnv("DEFAULT_PLAN", services.PlanFree, log)

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  userRepo := repos.NewUserRepo(thePG, log)
  userTokenRepo := repos.NewUserTokenRepo(thePG, log)
  schemaArtifactRepo := repos.NewSchemaArtifactRepo(thePG, log)
  practiceSessionRepo := repos.NewPracticeSessionRepo(thePG, log)
  competitionSubmissionRepo := repos.NewCompetitionSubmissionRepo(thePG, log)
  subscriptionRepo := repos.NewSubscriptionRepo(thePG, log)
  userUsageRepo := repos.NewUserUsageRepo(thePG, log)
  aiCallLogRepo := repos.NewAICallLogRepo(thePG, log)

  // Sandbox
  log.Info("Setting up sandbox registry from main...")
  registry, err := sandbox.NewRegistry(sandboxDir, log)
  if err != nil {
    log.Error("Could not init sandbox registry", "error", err)
    os.Exit(1)
  }
  runner := sandbox.NewRunner(log)

  // Clients
  openaiClient, err := openai.NewClient(log)
  if err != nil {
    log.Error("Could not init OpenAIClient", "error", err)
    os.Exit(1)
  }
  stripeClient, err := stripe.NewClient(log)
  if err != nil {
    log.Error("Could not init StripeClient", "error", err)
    os.Exit(1)
  }
  planBus, err := redis.NewPlanBus(log)
  if err != nil {
    log.Error("Could not init PlanBus", "error", err)
    os.Exit(1)
  }

  // Plan catalog
  planCatalog, err := services.LoadPlanCatalog()
  if err != nil {
    log.Error("Could not load plan catalog", "error", err)
    os.Exit(1)
  }

  // Services
  log.Info("Setting up Services from main...")
  authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, registry, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
  userService := services.NewUserService(log, userRepo)
  subscriptionService := services.NewSubscriptionService(log, subscriptionRepo, userUsageRepo, planCatalog, defaultPlan)
  generationService := services.NewGenerationService(log, openaiClient, aiCallLogRepo)
  practiceService := services.NewPracticeService(log, registry, runner, generationService, subscriptionService, schemaArtifactRepo, practiceSessionRepo, userRepo)
  competitionService := services.NewCompetitionService(log, registry, generationService, subscriptionService, schemaArtifactRepo, competitionSubmissionRepo, userRepo)
  billingService := services.NewBillingService(log, stripeClient, subscriptionRepo, subscriptionService, planBus)
  dashboardService := services.NewDashboardService(log, userRepo, practiceSessionRepo, competitionSubmissionRepo)
  certificateService, err := services.NewCertificateService(log, subscriptionService, practiceSessionRepo, userRepo)
  if err != nil {
    log.Error("Could not init CertificateService", "error", err)
    os.Exit(1)
  }

  // Plan changes made on other instances reach this one over the bus.
  rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
  defer stop()
  if err := planBus.StartForwarder(rootCtx, func(change redis.PlanChange) {
    subscriptionService.InvalidatePlanCache(change.UserID)
  }); err != nil {
    log.Warn("Plan bus forwarder failed to start", "error", err)
  }

  // Handlers
  log.Info("Setting up handlers from main...")
  authHandler := handlers.NewAuthHandler(authService)
  userHandler := handlers.NewUserHandler(userService)
  practiceHandler := handlers.NewPracticeHandler(practiceService)
  competitionHandler := handlers.NewCompetitionHandler(competitionService)
  subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)
  billingHandler := handlers.NewBillingHandler(billingService)
  dashboardHandler := handlers.NewDashboardHandler(dashboardService)
  certificateHandler := handlers.NewCertificateHandler(certificateService)

  // Middleware
  log.Info("Setting up middleware from main...")
  authMiddleware := middleware.NewAuthMiddleware(log, authService)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    AuthHandler:         authHandler,
    AuthMiddleware:      authMiddleware,
    UserHandler:         userHandler,
    PracticeHandler:     practiceHandler,
    CompetitionHandler:  competitionHandler,
    SubscriptionHandler: subscriptionHandler,
    BillingHandler:      billingHandler,
    DashboardHandler:    dashboardHandler,
    CertificateHandler:  certificateHandler,
  })

  port := utils.GetEnv("PORT", "8080", log)
  srv := &http.Server{Addr: ":" + port, Handler: router}
  go func() {
    fmt.Printf("Server listening on :%s\n", port)
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
      log.Error("Server failed", "error", err)
      stop()
    }
  }()

  <-rootCtx.Done()
  log.Info("Shutting down...")
  shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
  defer cancel()
  if err := srv.Shutdown(shutdownCtx); err != nil {
    log.Warn("Server shutdown error", "error", err)
  }
  registry.Close()
  if err := planBus.Close(); err != nil {
    log.Warn("Plan bus close error", "error", err)
  }
}
