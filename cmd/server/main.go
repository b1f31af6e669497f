// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/typemasterhq/typemaster/internal/auth"
	"github.com/typemasterhq/typemaster/internal/cache"
	"github.com/typemasterhq/typemaster/internal/config"
	"github.com/typemasterhq/typemaster/internal/database"
	"github.com/typemasterhq/typemaster/internal/handlers"
	"github.com/typemasterhq/typemaster/internal/middleware"
	"github.com/typemasterhq/typemaster/internal/models"
	"github.com/typemasterhq/typemaster/internal/racestore"
	"github.com/typemasterhq/typemaster/internal/text"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.Load()
	ctx := context.Background()

	store := newStore(ctx, cfg, logger)

	// Postgres and redis are optional: without them the server still races,
	// it just skips result persistence and text caching.
	if err := database.Connect(ctx, config.PostgresDSN()); err != nil {
		logger.Warnf("postgres unavailable, results will not be persisted: %v", err)
	}
	var textCache text.Cache
	if err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB); err != nil {
		logger.Warnf("redis unavailable, text caching and result queue disabled: %v", err)
	} else {
		textCache = cache.NewTextCache()
	}

	textProvider := text.NewHTTPProvider(textCache, logger)
	rs := handlers.NewRaceServer(store, textProvider, cfg, logger)

	rs.Controller.OnRaceFinished = func(result models.RaceResult) {
		bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if database.Connected() {
			if err := database.SaveRaceResult(bg, result); err != nil {
				logger.Warnf("failed to persist race result %s: %v", result.RaceID, err)
			}
		}
		if err := cache.PublishRaceResult(bg, result); err != nil {
			logger.Warnf("failed to queue race result %s: %v", result.RaceID, err)
		}
	}

	go rs.Cleanup.Run(ctx)

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)

	// race websocket
	mux.Handle("/race/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RaceWSHandler(logger, rs),
	)))

	// race REST endpoints
	mux.Handle("/races", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListRacesHandler(rs),
	)))
	mux.Handle("/races/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.GetRaceHandler(rs),
	)))
	mux.HandleFunc("/stats", handlers.StatsHandler(rs))
	mux.HandleFunc("/health", handlers.HealthHandler)

	// solo mode
	mux.Handle("/text", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.GetTextHandler(textProvider),
	)))
	mux.Handle("/results", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.SaveResultHandler,
	)))

	addr := ":" + cfg.Port
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// newStore connects to mongo; if it is unreachable the server falls back to
// the in-memory store so local development works without infrastructure.
func newStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) racestore.Store {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err == nil {
		err = client.Ping(connectCtx, nil)
	}
	if err != nil {
		logger.Warnf("mongo unavailable, using in-memory race store: %v", err)
		return racestore.NewMemoryStore()
	}

	store, err := racestore.NewMongoStore(connectCtx, client.Database(cfg.MongoDatabase))
	if err != nil {
		logger.Warnf("mongo store init failed, using in-memory race store: %v", err)
		return racestore.NewMemoryStore()
	}
	logger.Infof("connected to mongo at %s", cfg.MongoURI)
	return store
}
