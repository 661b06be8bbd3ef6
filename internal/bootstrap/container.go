package bootstrap

import (
	"context"
	"log"

	"silo-be/internal/config"
	"silo-be/internal/constant"
	"silo-be/internal/controller"
	"silo-be/internal/handler"
	"silo-be/internal/pkg/logger"
	"silo-be/internal/pkg/serverutils"
	"silo-be/internal/repository/cache"
	"silo-be/internal/repository/contract"
	"silo-be/internal/repository/implementation"
	"silo-be/internal/repository/memory"
	"silo-be/internal/service"
	"silo-be/internal/websocket"
	"silo-be/pkg/events"
	"silo-be/pkg/gemini"
	pktNats "silo-be/pkg/nats"
	"silo-be/pkg/speech/elevenlabs"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	SessionController  controller.ISessionController
	SearchController   controller.ISearchController
	ChatController     controller.IChatController
	SettingsController controller.ISettingsController

	// WebSockets
	SessionSocketHandler *handler.SessionSocketHandler
	LiveHandler          *handler.LiveHandler
	WebSocketHub         *websocket.Hub

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	ActivityService *service.ActivityService
	SettingsService service.ISettingsService

	Logger logger.ILogger

	sessions *memory.SessionRepository
	natsPub  *pktNats.Publisher
	natsSub  *pktNats.Subscriber
	rdb      *redis.Client
}

// NewContainer builds the object graph. db may be nil unless the settings store is
// postgres; without it settings fall back to memory.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	liveLogger := logger.NewIsolatedLogger(cfg.App.LiveLogFilePath)

	if cfg.Auth.JWTSecret == "" {
		log.Fatalf("[FATAL] JWT_SECRET is empty, refusing to issue unsigned session tokens")
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Remote Backends
	geminiClient, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:  cfg.Keys.Gemini,
		BaseURL: cfg.Ai.GeminiURL,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize Gemini client: %v", err)
	}
	if cfg.Keys.Gemini == "" {
		log.Printf("[WARN] GEMINI_API_KEY is empty, every generation will fail")
	}

	speechClient := elevenlabs.NewClient(elevenlabs.Config{
		APIKey:   cfg.Keys.ElevenLabs,
		BaseURL:  cfg.Voice.ElevenLabsURL,
		VoiceID:  cfg.Voice.VoiceID,
		TTSModel: cfg.Voice.TTSModel,
		STTModel: cfg.Voice.STTModel,
	})

	// 4. Infrastructure
	// NATS
	var eventPublisher events.Publisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		eventPublisher = natsPub
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	redisUp := true
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		redisUp = false
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	var hubRedis *redis.Client
	if redisUp {
		hubRedis = rdb
	}
	wsHub := websocket.NewHub(hubRedis, wsLogger)
	go wsHub.Run(ctx)

	// 5. Repositories
	sessionRepo := memory.NewSessionRepository(cfg.Auth.SessionIdle)
	settingsRepo := newSettingsRepository(cfg.Database.SettingsStore, db, rdb, redisUp)

	// 6. Services
	publisherService := service.NewPublisherService(constant.TopicSessionState, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		constant.TopicSessionState,
		wsHub, // Hub implements StateDelivery
		wsLogger,
	)

	sessionService := service.NewSessionService(
		sessionRepo,
		geminiClient,
		cfg.Ai,
		cfg.Auth,
		publisherService,
		eventPublisher,
		sysLogger,
	)
	settingsService := service.NewSettingsService(settingsRepo, sysLogger)
	liveService := service.NewLiveService(
		sessionService,
		geminiClient,
		speechClient,
		cfg.Ai,
		cfg.Voice,
		eventPublisher,
		liveLogger,
	)
	activityService := service.NewActivityService(natsSub, liveLogger)

	// 7. Controllers
	auth := serverutils.NewJwtMiddleware(cfg.Auth.JWTSecret)

	return &Container{
		SessionController:  controller.NewSessionController(sessionService, auth),
		SearchController:   controller.NewSearchController(sessionService, auth),
		ChatController:     controller.NewChatController(sessionService, auth),
		SettingsController: controller.NewSettingsController(settingsService, auth),

		SessionSocketHandler: handler.NewSessionSocketHandler(sessionService, wsHub, auth, wsLogger),
		LiveHandler:          handler.NewLiveHandler(sessionService, liveService, auth, liveLogger),
		WebSocketHub:         wsHub,

		ConsumerService: consumerService,
		ActivityService: activityService,
		SettingsService: settingsService,

		Logger: sysLogger,

		sessions: sessionRepo,
		natsPub:  natsPub,
		natsSub:  natsSub,
		rdb:      rdb,
	}
}

func newSettingsRepository(store string, db *gorm.DB, rdb *redis.Client, redisUp bool) contract.ISettingsRepository {
	switch store {
	case "postgres":
		if db != nil {
			log.Printf("[INFO] Using Settings Store: POSTGRES")
			return implementation.NewSettingsRepository(db)
		}
		log.Printf("[WARN] Settings store is postgres but no database is connected, using memory")
	case "redis":
		if redisUp {
			log.Printf("[INFO] Using Settings Store: REDIS")
			return cache.NewSettingsRepository(rdb)
		}
		log.Printf("[WARN] Settings store is redis but redis is down, using memory")
	}
	log.Printf("[INFO] Using Settings Store: MEMORY")
	return memory.NewSettingsRepository()
}

// Close waits for pending settings writes, ends every session and drops bus connections.
func (c *Container) Close() {
	c.SettingsService.Flush()
	c.sessions.CloseAll()
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.rdb != nil {
		c.rdb.Close()
	}
	c.Logger.Sync()
}
