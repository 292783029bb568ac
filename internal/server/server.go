package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relaypoint/mailadmin/internal/audit"
	"github.com/relaypoint/mailadmin/internal/captcha"
	"github.com/relaypoint/mailadmin/internal/config"
	"github.com/relaypoint/mailadmin/internal/handler"
	"github.com/relaypoint/mailadmin/internal/mailproxy"
	"github.com/relaypoint/mailadmin/internal/middleware"
	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/ratelimit"
	"github.com/relaypoint/mailadmin/internal/repository"
	"github.com/relaypoint/mailadmin/internal/service"
	"github.com/relaypoint/mailadmin/internal/storage"
)

type Server struct {
	router   *gin.Engine
	config   *config.Config
	redis    *storage.RedisClient
	postgres *storage.Postgres
	auditor  *audit.AsyncRecorder
	proxy    *mailproxy.Proxy

	attemptRepo *repository.SignupAttemptRepository
	janitorStop chan struct{}

	authService   *service.AuthService
	apiKeyService *service.APIKeyService

	signupHandler      *handler.SignupHandler
	sendingHandler     *handler.SendingHandler
	violationHandler   *handler.ViolationHandler
	remediationHandler *handler.RemediationHandler
	analyticsHandler   *handler.AnalyticsHandler
	authHandler        *handler.AuthHandler
	apiKeyHandler      *handler.APIKeyHandler

	httpServer *http.Server
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	counters, err := ratelimit.NewStore(cfg.Counter.Backend, postgres, redis)
	if err != nil {
		return nil, err
	}

	violationRepo := repository.NewViolationRepository(postgres)
	attemptRepo := repository.NewSignupAttemptRepository(postgres)
	profileRepo := repository.NewProfileRepository(postgres)
	operatorRepo := repository.NewOperatorRepository(postgres)
	apiKeyRepo := repository.NewAPIKeyRepository(postgres)

	auditor := audit.NewAsyncRecorder(audit.LogRecorder{}, 256)

	verifier := captcha.NewHTTPVerifier(cfg.Signup.Captcha.VerifyURL, cfg.Signup.Captcha.Secret)
	signupService := service.NewSignupService(counters, violationRepo, attemptRepo, verifier, service.SignupConfig{
		HourlyBound:    cfg.Signup.HourlyBound,
		DailyBound:     cfg.Signup.DailyBound,
		CaptchaEnabled: cfg.Signup.Captcha.Enabled,
	})

	tiers := make(map[string]service.TierBounds, len(cfg.Tiers))
	for _, tier := range cfg.Tiers {
		tiers[tier.Name] = service.TierBounds{Hourly: tier.HourlyBound, Daily: tier.DailyBound}
	}
	sendingService := service.NewSendingService(counters, profileRepo, violationRepo, auditor, tiers)

	violationService := service.NewViolationService(violationRepo, auditor)
	remediationService := service.NewRemediationService(counters, auditor)
	analyticsService := service.NewAnalyticsService(violationRepo, attemptRepo)
	authService := service.NewAuthService(operatorRepo, cfg.Auth.JWTSecret, cfg.Auth.ExpiryHours)
	apiKeyService := service.NewAPIKeyService(apiKeyRepo, redis)

	s := &Server{
		router:             router,
		config:             cfg,
		redis:              redis,
		postgres:           postgres,
		auditor:            auditor,
		attemptRepo:        attemptRepo,
		janitorStop:        make(chan struct{}),
		authService:        authService,
		apiKeyService:      apiKeyService,
		signupHandler:      handler.NewSignupHandler(signupService),
		sendingHandler:     handler.NewSendingHandler(sendingService),
		violationHandler:   handler.NewViolationHandler(violationService),
		remediationHandler: handler.NewRemediationHandler(remediationService),
		analyticsHandler:   handler.NewAnalyticsHandler(analyticsService),
		authHandler:        handler.NewAuthHandler(authService),
		apiKeyHandler:      handler.NewAPIKeyHandler(apiKeyService),
	}

	if err := s.initializeProxy(); err != nil {
		return nil, err
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) initializeProxy() error {
	if len(s.config.MailServer.Targets) == 0 {
		log.Printf("Warning: no mail-server targets configured, proxy disabled")
		return nil
	}

	p, err := mailproxy.New(mailproxy.Config{
		Targets:        s.config.MailServer.Targets,
		Strategy:       s.config.MailServer.Strategy,
		APIToken:       s.config.MailServer.APIToken,
		HealthEndpoint: s.config.MailServer.HealthEndpoint,
		Prefix:         "/mailserver",
	})
	if err != nil {
		return err
	}

	s.proxy = p
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")

	// Public: the registration form calls this before creating an account.
	// The in-memory throttle sheds floods before the durable counters run.
	public := v1.Group("")
	public.Use(middleware.Throttle(s.config.Throttle.RPS, s.config.Throttle.Burst))
	{
		public.POST("/signup/check", s.signupHandler.Check)
	}

	// Service-to-service: the MTA frontends authenticate with an API key.
	mta := v1.Group("")
	mta.Use(middleware.RequireAPIKey(s.apiKeyService))
	{
		mta.POST("/send/check", s.sendingHandler.Check)
	}

	auth := v1.Group("/auth")
	{
		auth.POST("/register", s.authHandler.Register)
		auth.POST("/login", s.authHandler.Login)
		auth.GET("/me", middleware.RequireAuth(s.authService), s.authHandler.Me)
	}

	// Operator console. Support staff can inspect and resolve; changing
	// quotas, suspending users and minting keys is admin-only.
	admin := v1.Group("/admin")
	admin.Use(middleware.RequireAuth(s.authService))
	{
		admin.GET("/users", s.sendingHandler.ListProfiles)
		admin.GET("/users/:id/sending", s.sendingHandler.GetProfile)
		admin.GET("/violations", s.violationHandler.List)
		admin.GET("/violations/:id", s.violationHandler.Get)
		admin.POST("/violations/:id/resolve", s.violationHandler.Resolve)
		admin.GET("/analytics", s.analyticsHandler.GetSummary)
		admin.GET("/analytics/signups/:ip", s.analyticsHandler.GetSignupAttempts)
		admin.GET("/counters", s.remediationHandler.GetCounter)

		restricted := admin.Group("")
		restricted.Use(middleware.RequireRole(models.RoleAdmin))
		{
			restricted.PUT("/users/:id/sending/tier", s.sendingHandler.SetTier)
			restricted.PUT("/users/:id/sending/enabled", s.sendingHandler.SetEnabled)
			restricted.POST("/counters/reset", s.remediationHandler.ResetCounter)
			restricted.POST("/mailproxy/breaker/reset", s.resetProxyBreaker)
			restricted.POST("/keys", s.apiKeyHandler.Create)
			restricted.GET("/keys", s.apiKeyHandler.List)
			restricted.DELETE("/keys/:id", s.apiKeyHandler.Revoke)
			restricted.GET("/operators", s.authHandler.ListOperators)
		}
	}

	s.setupProxyRoutes()
}

func (s *Server) setupProxyRoutes() {
	if s.proxy == nil {
		return
	}

	proxyGroup := s.router.Group("/mailserver")
	proxyGroup.Use(middleware.RequireAuth(s.authService), middleware.RequireRole(models.RoleAdmin))
	proxyGroup.Any("/*proxyPath", func(c *gin.Context) {
		s.proxy.Handle(c)
	})

	log.Printf("Registered mail-server proxy route: /mailserver")
}

func (s *Server) healthCheck(c *gin.Context) {
	redisHealthy := true
	if s.redis != nil {
		if err := s.redis.Ping(c.Request.Context()); err != nil {
			redisHealthy = false
			log.Printf("Redis health check failed: %v", err)
		}
	}

	dbHealthy := true
	if err := s.postgres.Ping(c.Request.Context()); err != nil {
		dbHealthy = false
		log.Printf("Database health check failed: %v", err)
	}

	status := "healthy"
	statusCode := http.StatusOK

	if !redisHealthy || !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	checks := gin.H{
		"redis":    redisHealthy,
		"database": dbHealthy,
	}
	if s.proxy != nil {
		checks["mail_server"] = s.proxy.Healthy()
		checks["mail_server_breaker"] = s.proxy.BreakerState().String()
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "mailadmin",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// resetProxyBreaker closes the mail-server proxy's circuit breaker after an
// operator has confirmed the upstream recovered.
func (s *Server) resetProxyBreaker(c *gin.Context) {
	if s.proxy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mail-server proxy is not configured"})
		return
	}

	s.proxy.ResetBreaker()

	c.JSON(http.StatusOK, gin.H{
		"message": "Circuit breaker reset",
		"state":   s.proxy.BreakerState().String(),
	})
}

// attemptJanitor prunes old signup-attempt rows once a day. The attempt log
// is diagnostic, not billing data, so ninety days is plenty.
func (s *Server) attemptJanitor() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -90)
			deleted, err := s.attemptRepo.DeleteOld(context.Background(), cutoff)
			if err != nil {
				log.Printf("Failed to prune signup attempts: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("Pruned %d signup attempts older than %s", deleted, cutoff.Format("2006-01-02"))
			}
		case <-s.janitorStop:
			return
		}
	}
}

func (s *Server) Run(addr string) error {
	go s.attemptJanitor()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.Printf("Starting mail admin portal on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)
	log.Printf("Counter backend: %s", s.config.Counter.Backend)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	close(s.janitorStop)

	if s.proxy != nil {
		s.proxy.Stop()
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.auditor.Close()

	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
