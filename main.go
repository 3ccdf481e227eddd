package main

import (
	"context"
	"log"
	"os"
	"time"

	"chatterbox/internal/api"
	"chatterbox/internal/auth"
	"chatterbox/internal/config"
	"chatterbox/internal/message"
	"chatterbox/internal/redis"
	"chatterbox/internal/session"
	"chatterbox/internal/storage"
	"chatterbox/internal/store"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("CHATTERBOX_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.BasicConfig.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	dbType := os.Getenv("CHATTERBOX_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create necessary tables: users, messages
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	sessionTTL := time.Duration(cfg.BasicConfig.SessionTTLDays) * 24 * time.Hour

	// Sessions live in redis when configured, so instances can share them;
	// otherwise a process-local store serves single-instance deployments.
	var sessions session.Store
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
		sessions, err = session.NewRedisStore(rdb)
		if err != nil {
			log.Fatalf("create session store: %v", err)
		}
	} else {
		memStore := session.NewMemoryStore()
		sweepCtx, sweepCancel := context.WithCancel(context.Background())
		defer sweepCancel()
		memStore.StartSweeper(sweepCtx, time.Hour)
		sessions = memStore
	}

	st := store.New(db)
	authService := auth.NewService(st, sessions, sessionTTL)
	messageService := message.NewService(st)
	handlers := api.NewHandler(authService, messageService, st)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
