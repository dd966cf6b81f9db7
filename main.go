package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay-service/config"
	"chat-relay-service/database"
	"chat-relay-service/events"
	"chat-relay-service/handlers"
	"chat-relay-service/logging"
	"chat-relay-service/metrics"
	"chat-relay-service/middleware"
	"chat-relay-service/notify"
	"chat-relay-service/providers"
	"chat-relay-service/relay"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	EndPointHealth  = "/health"
	EndPointVersion = "/version"
	EndPointMetrics = "/metrics"

	EndPointChat                   = "/api/chat"
	EndPointChatWS                 = "/api/chat/ws"
	EndPointCreateChat             = "/api/chat/createChat"
	EndPointGetChatList            = "/api/chat/getChatList"
	EndPointGetChatInfo            = "/api/chat/getChatInfo"
	EndPointGetChatMessages        = "/api/chat/getChatMessages"
	EndPointGetChatMessagesPreview = "/api/chat/getChatMessagesPreview"
	EndPointUpdateMessageMetadata  = "/api/chat/updateMessageMetadata"
	EndPointDeleteChat             = "/api/chat/deleteChat"
	EndPointGenerateImage          = "/api/chat/generateImage"

	EndPointConferenceNotification = "/api/conference-notification"
	EndPointConferenceSMS          = "/api/conference-sms"
)

func main() {
	cfg := config.Load()

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting the chat relay service...")
	metrics.Register()

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.InitializeSchema(ctx, db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	store := database.NewChatService(db)

	registry, err := providers.NewRegistryFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up providers: %v", err)
	}

	publisher, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
	if err != nil {
		log.Fatalf("Failed to set up event publisher: %v", err)
	}
	defer publisher.Close()

	h := handlers.New(cfg, store, registry,
		relay.New(store, publisher, cfg.StreamBatchSize),
		notify.NewEmailNotifier(cfg),
		notify.NewSMSNotifier(cfg),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Chat relay service starting on port %s", cfg.Port)
		log.Infof("Rate limit: %d requests per minute", cfg.RateLimitPerMinute)
		log.Infof("Allowed origins: %s", cfg.AllowedOrigins)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, h *handlers.Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.AllowedOriginList()))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Compression(EndPointChat, EndPointChatWS, EndPointMetrics))

	router.GET(EndPointHealth, h.HealthCheck)
	router.GET(EndPointVersion, h.Version)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))

	api := router.Group("/")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, time.Minute))
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		api.POST(EndPointChat, h.Chat)
		api.GET(EndPointChatWS, h.ChatWebSocket)
		api.POST(EndPointCreateChat, h.CreateChat)
		api.POST(EndPointGetChatList, h.GetChatList)
		api.POST(EndPointGetChatInfo, h.GetChatInfo)
		api.POST(EndPointGetChatMessages, h.GetChatMessages)
		api.POST(EndPointGetChatMessagesPreview, h.GetChatMessagesPreview)
		api.POST(EndPointUpdateMessageMetadata, h.UpdateMessageMetadata)
		api.POST(EndPointDeleteChat, h.DeleteChat)
		api.POST(EndPointGenerateImage, h.GenerateImage)
		api.POST(EndPointConferenceNotification, h.ConferenceNotification)
		api.POST(EndPointConferenceSMS, h.ConferenceSMS)
	}

	return router
}
