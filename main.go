package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"cookwithme/internal/api"
	"cookwithme/internal/auth"
	"cookwithme/internal/config"
	"cookwithme/internal/redis"
	"cookwithme/internal/service/ai"
	"cookwithme/internal/service/assistant"
	"cookwithme/internal/storage"
)

func main() {
	cfgPath := os.Getenv("COOKWITHME_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("COOKWITHME_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create necessary tables: users, sessions, conversations, turns
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// The session cache is optional; sessions stay valid without redis.
	var cache *redis.Client
	if cfg.Redis.Host != "" {
		cache, err = redis.NewClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer cache.Close()
	}

	providerName, providerCfg, err := cfg.ActiveProvider()
	if err != nil {
		log.Fatalf("resolve provider: %v", err)
	}
	provider, err := ai.NewClient(context.Background(), providerName, providerCfg)
	if err != nil {
		log.Fatalf("init provider %s: %v", providerName, err)
	}

	sessionTTL := time.Duration(cfg.BasicConfig.SessionTTLHours) * time.Hour
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	assistantService := assistant.NewService(db, dbType, provider)
	authService := auth.NewService(db, cache, sessionTTL)
	handlers := api.NewHandler(assistantService, authService)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":3001"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
