package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm/logger"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/config"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/handler"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/identity"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/middleware"
	pgRepo "github.com/aifraenkel/artist-finance-manager-sub002/internal/repository/postgres"
	redisRepo "github.com/aifraenkel/artist-finance-manager-sub002/internal/repository/redis"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/service"
	"github.com/aifraenkel/artist-finance-manager-sub002/pkg/auth"
	"github.com/aifraenkel/artist-finance-manager-sub002/pkg/database"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	isProduction := gin.Mode() == gin.ReleaseMode
	gormLogLevel := logger.Info
	if isProduction {
		gormLogLevel = logger.Warn
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), gormLogLevel)
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	if err := database.MigrateDB(db, cfg.Database.MigrationsPath); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := database.NewUniversalRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Println("Successfully connected to Redis")

	// Репозитории
	userRepo := pgRepo.NewUserRepo(db)
	pendingRepo, err := pgRepo.NewPendingRegistrationRepo(db)
	if err != nil {
		log.Printf("Failed to initialize PendingRegistrationRepo: %v", err)
		os.Exit(1)
	}
	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Identity provider
	credentialIssuer, err := auth.NewCredentialIssuer(cfg.Identity.SigningSecret, cfg.Identity.Issuer, cfg.Identity.CredentialTTL)
	if err != nil {
		log.Printf("Failed to initialize CredentialIssuer: %v", err)
		os.Exit(1)
	}
	identityProvider, err := identity.NewLocalProvider(userRepo, credentialIssuer, cfg.Identity.SignInURL)
	if err != nil {
		log.Printf("Failed to initialize identity provider: %v", err)
		os.Exit(1)
	}

	// Сервисы
	var emailService service.EmailService
	switch cfg.Email.Provider {
	case "noop":
		log.Println("Email provider: noop (links are logged, not sent)")
		emailService = &service.NoopEmailService{}
	default:
		resendService, err := service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From)
		if err != nil {
			log.Printf("Failed to initialize EmailService: %v", err)
			os.Exit(1)
		}
		emailService = resendService
	}

	registrationService, err := service.NewRegistrationService(pendingRepo)
	if err != nil {
		log.Printf("Failed to initialize RegistrationService: %v", err)
		os.Exit(1)
	}

	authFlowService, err := service.NewAuthFlowService(service.AuthFlowDeps{
		Registrations:   registrationService,
		Identities:      identityProvider,
		Profiles:        userRepo,
		Emails:          emailService,
		Guard:           service.NewCacheDuplicateGuard(cacheRepo, cfg.Registration.DuplicateWindow),
		Credentials:     credentialIssuer,
		UsedCredentials: cacheRepo,
		VerifyURL:       cfg.Registration.VerifyURL,
	})
	if err != nil {
		log.Printf("Failed to initialize AuthFlowService: %v", err)
		os.Exit(1)
	}

	if interval := cfg.Registration.CleanupInterval; interval > 0 {
		go runCleanupLoop(ctx, registrationService, interval)
	} else {
		log.Println("In-process cleanup disabled (registration.cleanup_interval=0)")
	}

	registrationHandler := handler.NewRegistrationHandler(authFlowService)
	adminHandler := handler.NewAdminHandler(registrationService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	router := gin.Default()

	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	allowOrigins := cfg.CORS.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.AdminKeyHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handler.Health)

	public := router.Group("/")
	public.Use(rateLimiter.LimitByIP(middleware.DefaultLinkRateLimitConfig()))
	{
		// Отправка писем ограничена строже
		strict := rateLimiter.Limit(middleware.StrictLinkRateLimitConfig())
		public.POST("/createRegistration", strict, registrationHandler.CreateRegistration)
		public.POST("/createSignInRequest", strict, registrationHandler.CreateSignInRequest)
		public.POST("/verifyRegistrationToken", registrationHandler.VerifyRegistrationToken)
		public.POST("/exchangeSignInCredential", registrationHandler.ExchangeSignInCredential)
	}

	if cfg.Admin.APIKey != "" {
		admin := router.Group("/admin")
		admin.Use(middleware.RequireAdminKey(cfg.Admin.APIKey))
		{
			admin.POST("/cleanupExpiredRegistrations", adminHandler.CleanupExpiredRegistrations)
			admin.GET("/registrations/export", adminHandler.ExportRegistrations)
		}
	} else {
		log.Println("Admin endpoints disabled (ADMIN_API_KEY not set)")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Server is running on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Останавливаем фоновую очистку
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}

// runCleanupLoop periodically removes expired pending registrations until ctx is done.
func runCleanupLoop(ctx context.Context, registrations *service.RegistrationService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Запуск периодической очистки истекших регистраций (каждые %s)", interval)

	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			deleted, err := registrations.CleanupExpiredRegistrations(runCtx)
			cancel()
			if err != nil {
				log.Printf("Ошибка при очистке регистраций: %v", err)
				continue
			}
			log.Printf("Очистка выполнена, удалено записей: %d", deleted)
		case <-ctx.Done():
			log.Println("Завершение работы горутины очистки регистраций")
			return
		}
	}
}
