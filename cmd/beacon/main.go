package main

import (
	"context"
	"expvar"
	"log"
	"runtime"

	"github.com/google/uuid"
	"github.com/signalcraft/beacon/internal/domain"
	"github.com/signalcraft/beacon/internal/identity"
	"github.com/signalcraft/beacon/internal/infrastructure/configs"
	"github.com/signalcraft/beacon/internal/infrastructure/events"
	"github.com/signalcraft/beacon/internal/infrastructure/logging"
	"github.com/signalcraft/beacon/internal/infrastructure/messaging"
	"github.com/signalcraft/beacon/internal/infrastructure/ratelimiter"
	"github.com/signalcraft/beacon/internal/infrastructure/tracing"
	"github.com/signalcraft/beacon/internal/persistence/db"
	"github.com/signalcraft/beacon/internal/persistence/repository"
	"github.com/signalcraft/beacon/internal/presentation/api"
	"github.com/signalcraft/beacon/internal/presentation/handler/health"
	"github.com/signalcraft/beacon/internal/presentation/handler/rooms"
	"github.com/signalcraft/beacon/internal/presentation/handler/signal"
	"github.com/signalcraft/beacon/internal/registry"
	"github.com/signalcraft/beacon/internal/router"
	"github.com/signalcraft/beacon/internal/ws"
)

const serviceName = "beacon"

func main() {
	tracerCfg := tracing.NewDefaultConfig(serviceName)

	sh, err := tracing.InitTracer(tracerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize the tracer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sh(ctx)

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		FilePath: cfg.Logging.FilePath,
		Encoding: cfg.Logging.Encoding,
		Level:    cfg.Logging.Level,
		Logger:   cfg.Logging.Logger,
	})
	logger.Init()

	redisClient, err := db.NewRedisClient(ctx, db.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	shadowStore := repository.NewRoomShadowStore(redisClient)
	roomRegistry := registry.NewRoomRegistry(shadowStore, cfg.Room.TTL, tracing.GetTracer(serviceName))

	var verifier identity.Verifier
	switch cfg.Auth.Mode {
	case "hmac":
		verifier = identity.NewHMACVerifier(cfg.Auth.Secret)
	default:
		logger.Warn(logging.General, logging.Startup, "identity verification running in insecure mode", nil)
		verifier = identity.InsecureVerifier{}
	}

	instanceID := cfg.Cluster.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	// The message bus backs both the audit pipeline and cross-instance
	// routing; it is dialed when either is enabled.
	var rabbitmq *messaging.RabbitMQ
	if cfg.Cluster.Enabled || cfg.Audit.Enabled {
		rabbitmq, err = messaging.NewRabbitMQ(cfg.Cluster.RabbitMQURI)
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbitmq.Close()
	}

	var publisher *events.RoomPublisher
	if rabbitmq != nil {
		publisher = events.NewRoomPublisher(rabbitmq)
	}

	var presence router.PresenceStore
	if cfg.Cluster.Enabled {
		presence = repository.NewPresenceStore(redisClient)
	}

	var auditRepo domain.RoomAuditRepository
	if cfg.Audit.Enabled {
		mongoCfg := &db.MongoConfig{
			URI:      cfg.Audit.MongoURI,
			Database: cfg.Audit.Database,
		}

		mongoClient, err := db.NewMongoClient(ctx, mongoCfg)
		if err != nil {
			logger.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer db.DisconnectMongo(ctx, mongoClient)

		auditRepo = repository.NewRoomAuditLogRepository(db.GetDatabase(mongoClient, mongoCfg))
		if err := auditRepo.EnsureIndexes(ctx); err != nil {
			logger.Fatalf("Failed to ensure audit log indexes: %v", err)
		}

		auditConsumer := events.NewRoomConsumer(rabbitmq, auditRepo, logger)
		if err := auditConsumer.Setup(); err != nil {
			logger.Fatalf("Failed to set up audit queue: %v", err)
		}
		go func() {
			if err := auditConsumer.Listen(); err != nil {
				logger.Errorf("Audit consumer stopped: %v", err)
			}
		}()
	}

	hub := ws.NewHub(roomRegistry, verifier, presence, publisher, logger, instanceID)

	localRouter := router.NewLocalRouter(hub)
	if cfg.Cluster.Enabled {
		remoteRouter := router.NewRemoteRouter(localRouter, presence, rabbitmq, instanceID, cfg.Cluster.PublishWait, logger)
		if err := remoteRouter.Setup(); err != nil {
			logger.Fatalf("Failed to set up route queue: %v", err)
		}
		go func() {
			if err := remoteRouter.Listen(); err != nil {
				logger.Errorf("Route consumer stopped: %v", err)
			}
		}()
		hub.SetRouter(remoteRouter)
	} else {
		hub.SetRouter(localRouter)
	}

	roomHandler := rooms.NewHandler(roomRegistry, verifier, publisher, auditRepo, logger)
	healthHandler := health.NewHandler(roomRegistry, hub)
	signalHandler := signal.NewHandler(hub, logger)

	rl := ratelimiter.New(redisClient, ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
	})
	app := api.NewApplication(*cfg, roomHandler, healthHandler, signalHandler, logger, rl)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.Mount()
	if err := app.Run(mux); err != nil {
		logger.Fatalf("Server exited: %v", err)
	}
}
