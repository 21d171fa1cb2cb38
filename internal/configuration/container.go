package configuration

import (
	"context"
	"time"

	"minchat/internal/db"
	"minchat/internal/handler"
	"minchat/internal/hub"
	"minchat/internal/ledger"
	"minchat/internal/model"
	"minchat/internal/presence"
	"minchat/internal/repo"
	"minchat/internal/service"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Container struct {
	ChatHandler     handler.ChatHandler
	PresenceHandler handler.PresenceHandler
	Hub             *hub.Hub
	Config          Config
	Logger          *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer() (*Container, error) {
	v, err := LoadConfig("config")
	if err != nil {
		return nil, errors.Wrap(err, "configuration.BuildContainer.LoadConfig")
	}
	config, err := ParseConfig(v)
	if err != nil {
		return nil, errors.Wrap(err, "configuration.BuildContainer.ParseConfig")
	}

	logger, err := newLogger(config.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "configuration.BuildContainer.newLogger")
	}

	var (
		messages      repo.MessageRepository
		counters      repo.CounterRepository
		presenceStore repo.PresenceRepository
		mongoClient   *mongo.Database
	)
	switch config.Storage.Driver {
	case "", "mongo":
		con, err := db.OpenConnection(config.Mongo.URI, config.Mongo.Database)
		if err != nil {
			return nil, errors.Wrap(err, "configuration.BuildContainer.OpenConnection")
		}
		mongoClient = con
		messages = repo.NewMessageRepository(
			db.NewRepository[model.Message](con, config.Mongo.MessagesCollection), logger)
		counters = repo.NewCounterRepository(
			db.NewRepository[model.UnreadCounter](con, config.Mongo.CountersCollection), logger)
		presenceStore = repo.NewPresenceRepository(
			db.NewRepository[model.UserPresence](con, config.Mongo.PresenceCollection), logger)
	case "memory":
		messages = repo.NewMemoryMessageRepository()
		counters = repo.NewMemoryCounterRepository()
		presenceStore = repo.NewMemoryPresenceRepository()
	default:
		return nil, errors.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	tracker := presence.NewTracker(presenceStore, logger)
	counterLedger := ledger.NewLedger(counters, tracker, logger)

	// The hub is both the notifier the service publishes through and the
	// socket ingress that dispatches inbound events back to the service,
	// so the command side is wired after construction.
	socketHub := hub.NewHub(logger)
	chatService := service.NewChatService(messages, counterLedger, tracker, socketHub, logger)
	socketHub.SetCommands(chatService)

	chatHandler := handler.NewChatHandler(chatService)
	presenceHandler := handler.NewPresenceHandler(chatService)

	logger.Info("container built",
		zap.String("storage_driver", config.Storage.Driver),
		zap.Int("app_port", config.Server.AppPort),
		zap.Int("socket_port", config.Server.SocketPort),
	)

	return &Container{
		ChatHandler:     chatHandler,
		PresenceHandler: presenceHandler,
		Hub:             socketHub,
		Config:          *config,
		Logger:          logger,
		mongoClient:     mongoClient,
	}, nil
}

func newLogger(cfg LoggerConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
		}
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}
	return zapConfig.Build()
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return errors.Wrap(err, "failed to close MongoDB connection")
		}
	}

	return nil
}
