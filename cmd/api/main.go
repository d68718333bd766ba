package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"scrapmart/internal/adapter/api"
	"scrapmart/internal/adapter/api/handler"
	apimiddleware "scrapmart/internal/adapter/api/middleware"
	"scrapmart/internal/adapter/api/router"
	"scrapmart/internal/adapter/repository"
	domainrepo "scrapmart/internal/domain/repository"
	"scrapmart/internal/domain/service"
	"scrapmart/internal/infrastructure/firebase"
	"scrapmart/internal/infrastructure/presence"
	"scrapmart/internal/infrastructure/ratelimit"
	"scrapmart/internal/infrastructure/websocket"
	"scrapmart/internal/usecase"
	"scrapmart/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Firebase is only initialised when something needs it: Firestore storage,
	// FCM notifications or real ID token verification.
	var firebaseApp *fbapp.App
	var opt option.ClientOption
	if cfg.StoreDriver == "firestore" || cfg.NotifyDriver == "fcm" || !cfg.DevAuth {
		opt = firebaseCredentials(cfg)
		firebaseApp, err = fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
	}

	var chatRepo domainrepo.ChatRepository
	var userRepo domainrepo.UserRepository
	var productRepo domainrepo.ProductRepository

	switch cfg.StoreDriver {
	case "firestore":
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		chatRepo = repository.NewFirestoreChatRepository(firestoreClient)
		userRepo = repository.NewFirestoreUserRepository(firestoreClient)
		productRepo = repository.NewFirestoreProductRepository(firestoreClient)
	case "memory":
		users := repository.NewMemoryUserRepository()
		products := repository.NewMemoryProductRepository()
		if cfg.SeedFile != "" {
			if err := repository.LoadSeed(cfg.SeedFile, users, products); err != nil {
				log.Fatalf("Failed to load seed data: %v", err)
			}
			log.Printf("Loaded seed data from %s", cfg.SeedFile)
		}

		chatRepo = repository.NewMemoryChatRepository()
		userRepo = users
		productRepo = products
	default:
		log.Fatalf("Unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	var presenceStore presence.Store
	switch cfg.PresenceDriver {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		defer redisClient.Close()
		presenceStore = presence.NewRedisStore(redisClient, cfg.PresenceTTL)
	case "memory":
		presenceStore = presence.NewMemoryStore()
	default:
		log.Fatalf("Unknown PRESENCE_DRIVER %q", cfg.PresenceDriver)
	}

	var notifier service.OfflineNotifier
	switch cfg.NotifyDriver {
	case "fcm":
		messagingClient, err := firebaseApp.Messaging(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Messaging: %v", err)
		}
		notifier = service.NewFCMNotifier(firebase.NewPushClient(messagingClient))
	case "smtp":
		notifier = service.NewSMTPNotifier(service.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	case "log":
		notifier = service.NewLogNotifier()
	default:
		log.Fatalf("Unknown NOTIFY_DRIVER %q", cfg.NotifyDriver)
	}

	var verifier firebase.TokenVerifier
	if firebaseApp != nil {
		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		verifier = firebase.NewFirebaseAuthClient(authClient)
	}
	if cfg.DevAuth {
		log.Printf("DEV_AUTH enabled: accepting dev:<uid> tokens")
		verifier = firebase.NewDevTokenVerifier(verifier)
	}

	policies := ratelimit.DefaultPolicies()
	policies[ratelimit.ActionSendMessage] = ratelimit.Policy{
		Burst:    cfg.ChatSendRate,
		Refill:   1,
		Interval: cfg.ChatSendInterval,
	}
	rateLimiter := ratelimit.NewRateLimiter(policies)
	rateLimiter.StartCleanupRoutine(5*time.Minute, ctx.Done())

	chatUseCase := usecase.NewChatUseCase(chatRepo, userRepo, productRepo, rateLimiter)

	wsManager := websocket.NewManager(chatUseCase, presenceStore, notifier, websocket.Options{
		SendTimeout: cfg.WSSendTimeout,
		PongWait:    cfg.WSPongWait,
	})
	wsManager.Start(ctx)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)

	handlers := router.Handlers{
		Chat:      handler.NewChatHandler(chatUseCase),
		Presence:  handler.NewPresenceHandler(wsManager),
		WebSocket: handler.NewWebSocketHandler(wsManager, verifier, cfg.WSAllowedOrigins),
		Health:    handler.NewHealthHandler(wsManager),
	}
	if cfg.DevAuth {
		handlers.Dev = handler.NewDevTokenHandler(chatUseCase)
	}
	router.Setup(e, handlers, authMiddleware, apimiddleware.RateLimit(rateLimiter))

	go func() {
		log.Printf("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := wsManager.WaitNotifications(shutdownCtx); err != nil {
		log.Printf("Pending notifications dropped: %v", err)
	}
}

// firebaseCredentials prefers inline JSON (production) over a key file (local development).
func firebaseCredentials(cfg *config.Config) option.ClientOption {
	if cfg.FirebaseServiceAccountKey != "" {
		log.Printf("Using Firebase service account from environment variable")
		return option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountKey))
	}

	if cfg.FirebaseServiceAccount == "" {
		log.Fatalf("Set FIREBASE_SERVICE_ACCOUNT_JSON or FIREBASE_SERVICE_ACCOUNT_PATH")
	}
	if _, err := os.Stat(cfg.FirebaseServiceAccount); os.IsNotExist(err) {
		log.Fatalf("Service account file does not exist: %s", cfg.FirebaseServiceAccount)
	}

	log.Printf("Using Firebase service account from file: %s", cfg.FirebaseServiceAccount)
	return option.WithCredentialsFile(cfg.FirebaseServiceAccount)
}
