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

	_ "fruittrace/api/swagger" // swagger docs
	"fruittrace/internal/blob"
	"fruittrace/internal/config"
	"fruittrace/internal/database"
	"fruittrace/internal/handler"
	"fruittrace/internal/logging"
	"fruittrace/internal/metrics"
	"fruittrace/internal/middleware"
	"fruittrace/internal/notify"
	"fruittrace/internal/repository"
	"fruittrace/internal/service"
	"fruittrace/internal/websocket"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           FruitTrace Back Office API
// @version         1.0
// @description     Product traceability catalog with a staff approval workflow.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env", os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	if cfg.AWSEnabled() {
		log.Printf("AWS integrations enabled (blob=%s, ses=%t, sns=%t)", cfg.Blob.Driver, cfg.Notify.SESEnabled, cfg.Notify.SNSTopicARN != "")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.DB)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close(db)
	log.Printf("Connected to %s successfully.", cfg.DB.Driver)

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	store, err := blob.Open(ctx, blob.Config{
		Driver:     blob.Driver(cfg.Blob.Driver),
		FSRoot:     cfg.Blob.FSRoot,
		PublicBase: cfg.Blob.PublicBase,
		S3: blob.S3Config{
			Bucket:    cfg.Blob.S3Bucket,
			Region:    cfg.Blob.S3Region,
			Endpoint:  cfg.Blob.S3Endpoint,
			PathStyle: cfg.Blob.S3PathStyle,
		},
	})
	if err != nil {
		log.Fatalf("Blob store setup failed: %v", err)
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(websocket.WithAllowedOrigins(cfg.CORSOrigins...))
	go wsHub.Run(ctx)

	m := metrics.New()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db, repository.WithLockTimeout(cfg.DB.LockTimeout))
	approvalRepo := repository.NewApprovalRepository(db)
	productRepo := repository.NewProductRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)

	userService := service.NewUserService(txManager, userRepo, auditRepo, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL,
		service.WithRefreshTTL(cfg.Auth.RefreshTTL))

	dispatcher := notify.NewDispatcher(
		notificationSinks(ctx, cfg, wsHub, userService),
		notify.WithQueueSize(cfg.Notify.QueueSize),
		notify.WithSinkTimeout(cfg.Notify.SinkTimeout),
		notify.WithObserver(m),
	)
	dispatcher.Start()

	reviewService := service.NewReviewService(txManager, approvalRepo, productRepo, auditRepo, dispatcher, m)
	intakeService := service.NewIntakeService(txManager, approvalRepo, catalogRepo, auditRepo, reviewService, store, dispatcher, m)
	catalogService := service.NewCatalogService(txManager, catalogRepo, productRepo, auditRepo)
	approvalService := service.NewApprovalService(approvalRepo, productRepo)
	publicService := service.NewPublicService(productRepo, m)
	auditService := service.NewAuditService(auditRepo)

	auth := middleware.NewAuth([]byte(cfg.Auth.JWTSecret))
	secureCookie := cfg.GinMode == gin.ReleaseMode

	// Set up Gin Router
	router := gin.New()
	router.Use(gin.Recovery(), logging.JSONLogger(), m.Middleware())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, auth.Secret())
	})

	if fs, ok := store.(*blob.Filesystem); ok {
		router.Static(cfg.Blob.PublicBase, fs.Root())
	}

	handler.Mount(router,
		handler.NewUserHandler(userService, auth, cfg.Auth.TokenTTL, cfg.Auth.RefreshTTL, secureCookie),
		handler.NewProductHandler(intakeService, catalogService, publicService, auth, cfg.Blob.MaxUploadBytes),
		handler.NewApprovalHandler(approvalService, reviewService, auth),
		handler.NewCatalogHandler(catalogService, auth),
		handler.NewAuditHandler(auditService, auth),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Printf("Notification queue not drained: %v", err)
	}
}

// notificationSinks always logs and pushes to admin websockets. Mail and topic
// delivery are added when configured.
func notificationSinks(ctx context.Context, cfg config.Config, hub *websocket.Hub, users service.UserService) []notify.Notifier {
	sinks := []notify.Notifier{notify.LogNotifier{}, notify.NewHubNotifier(hub)}
	if !cfg.Notify.SESEnabled && cfg.Notify.SNSTopicARN == "" {
		return sinks
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Notify.AWSRegion))
	if err != nil {
		logging.Error("aws config unavailable, mail and topic notifications disabled", err, nil)
		return sinks
	}

	if cfg.Notify.SESEnabled {
		recipients := notify.RecipientSource(users.AdminEmails)
		if len(cfg.Notify.AdminEmails) > 0 {
			recipients = notify.StaticRecipients(cfg.Notify.AdminEmails...)
		}
		sinks = append(sinks, notify.NewEmailNotifierFromConfig(awsCfg, cfg.Notify.SESFrom, recipients))
	}
	if cfg.Notify.SNSTopicARN != "" {
		sinks = append(sinks, notify.NewTopicNotifierFromConfig(awsCfg, cfg.Notify.SNSTopicARN))
	}
	return sinks
}
