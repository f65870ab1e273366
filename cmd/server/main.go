package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/studymate/internal/config"
	"github.com/quocanhngo/studymate/internal/delivery"
	"github.com/quocanhngo/studymate/internal/handler"
	"github.com/quocanhngo/studymate/internal/middleware"
	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/internal/otp"
	"github.com/quocanhngo/studymate/internal/ratelimit"
	"github.com/quocanhngo/studymate/internal/repository"
	"github.com/quocanhngo/studymate/internal/service"
	"github.com/quocanhngo/studymate/internal/ws"
	"github.com/quocanhngo/studymate/migrations"
	"github.com/quocanhngo/studymate/pkg/auth"
	"github.com/quocanhngo/studymate/pkg/clock"
	"github.com/quocanhngo/studymate/pkg/mailer"
	"github.com/quocanhngo/studymate/pkg/notification"
	"github.com/quocanhngo/studymate/pkg/storage"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// @title           StudyMate API
// @version         1.0
// @description     Accounts, email verification and password reset for the StudyMate study companion.

// @contact.name   API Support
// @contact.email  support@studymate.local

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	log.Printf("🚀 Starting StudyMate API Server [env=%s]", cfg.App.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ==================== Database (PostgreSQL) ====================
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.IsProduction() {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Printf("⚠️  Migration warning: %v", err)
		log.Println("📦 Falling back to GORM AutoMigrate...")
		if err := db.AutoMigrate(&model.User{}, &model.UserDevice{}, &model.OTPRecord{}); err != nil {
			log.Fatalf("❌ Failed to migrate database: %v", err)
		}
	}
	log.Println("✅ Database migrated successfully")

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// ==================== Repositories ====================
	sysClock := clock.New()
	userRepo := repository.NewUserRepository(db)
	blacklist := repository.NewTokenBlacklist(rdb, sysClock, cfg.JWT.Expiry)

	// ==================== OTP ====================
	otpStore := newOTPStore(cfg.OTP, db, rdb, sysClock)
	otpManager := otp.NewManager(otpStore, sysClock, otp.Config{
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
		Retention:   cfg.OTP.Retention,
	})
	go otpManager.RunSweeper(ctx, cfg.OTP.SweepInterval)
	log.Printf("🔑 OTP configured [store=%s ttl=%s max_attempts=%d]", cfg.OTP.Store, otpManager.TTL(), otpManager.MaxAttempts())

	limiter := ratelimit.NewLimiter(rdb, ratelimit.Config{
		Cooldown: cfg.OTP.ResendCooldown,
		Window:   cfg.OTP.ResendWindow,
		Max:      cfg.OTP.ResendMax,
	})

	// ==================== Delivery (SMTP / FCM / dev log) ====================
	var otpMailer delivery.OTPMailer
	if cfg.SMTP.Host != "" {
		otpMailer = mailer.New(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		})
		log.Printf("📧 SMTP configured: %s:%s", cfg.SMTP.Host, cfg.SMTP.Port)
	}

	var pusher delivery.Pusher
	if ns := notification.NewNotificationService(ctx, cfg.Firebase.CredentialsFile, userRepo); ns != nil {
		pusher = ns
	}

	channels, err := delivery.FromNames(cfg.OTP.Channels, otpMailer, pusher)
	if err != nil {
		log.Fatalf("❌ Invalid OTP_CHANNELS=%q: %v", cfg.OTP.Channels, err)
	}
	log.Printf("📨 OTP delivery channels: %s", channels.Name())

	// ==================== MinIO (avatars) ====================
	var avatarStorage storage.Storage
	if cfg.MinIO.Enabled {
		minioStorage, err := storage.NewMinIO(ctx, storage.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			PublicURL: cfg.MinIO.PublicURL,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			log.Printf("⚠️  MinIO not available: %v (avatar upload disabled)", err)
		} else {
			avatarStorage = minioStorage
			log.Println("✅ Connected to MinIO")
		}
	}

	// ==================== Services ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	var google service.GoogleVerifier
	if cfg.Google.ClientID != "" {
		google = service.NewGoogleVerifier(cfg.Google.ClientID)
	}

	// WebSocket Hub (with Redis Pub/Sub for horizontal scaling)
	hub := ws.NewHub(rdb)
	go hub.Run(ctx)

	authService := service.NewAuthService(service.AuthDeps{
		Users:     userRepo,
		OTP:       otpManager,
		Limiter:   limiter,
		Delivery:  channels,
		JWT:       jwtManager,
		Blacklist: blacklist,
		Events:    hub,
		Google:    google,
		Storage:   avatarStorage,
		Clock:     sysClock,
	})

	// Handlers
	authHandler := handler.NewAuthHandler(authService)
	wsHandler := handler.NewWSHandler(hub, jwtManager, blacklist, cfg.CORS.Origins)

	// ==================== Gin Router ====================
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))

	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "studymate-api",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// ==================== API Routes ====================
	api := router.Group("/api/v1")
	authHandler.RegisterRoutes(api, middleware.AuthMiddleware(jwtManager, blacklist))

	// WebSocket endpoint (auth via query parameter)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Printf("🌐 StudyMate API running on http://0.0.0.0:%s", cfg.App.Port)
	log.Printf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)
	log.Printf("🔌 WebSocket: ws://0.0.0.0:%s/ws?token=<jwt>", cfg.App.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	cancel()
	_ = rdb.Close()
	log.Println("✅ Server exited gracefully")
}

// newOTPStore picks where outstanding codes live. memory only works for a
// single instance; redis and postgres are shared.
func newOTPStore(cfg config.OTPConfig, db *gorm.DB, rdb redis.UniversalClient, clk clock.Clocker) otp.Store {
	switch cfg.Store {
	case "redis":
		return repository.NewOTPRedisRepository(rdb, clk, cfg.Retention)
	case "postgres":
		return repository.NewOTPRepository(db)
	case "memory", "":
		return otp.NewMemoryStore()
	default:
		log.Fatalf("❌ Unknown OTP_STORE=%q (want memory, redis or postgres)", cfg.Store)
		return nil
	}
}
