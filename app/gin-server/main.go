package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/aegislabs/aegis/config"
	"github.com/aegislabs/aegis/internal/api/handlers"
	"github.com/aegislabs/aegis/internal/api/middleware"
	"github.com/aegislabs/aegis/internal/api/routes"
	"github.com/aegislabs/aegis/internal/cache"
	"github.com/aegislabs/aegis/internal/logger"
	"github.com/aegislabs/aegis/internal/models"
	"github.com/aegislabs/aegis/internal/providers/embeddings"
	"github.com/aegislabs/aegis/internal/providers/llm"
	mongorepo "github.com/aegislabs/aegis/internal/repositories/mongo"
	pgrepo "github.com/aegislabs/aegis/internal/repositories/postgres"
	"github.com/aegislabs/aegis/internal/services"
	"github.com/aegislabs/aegis/internal/tokens"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	ctx := context.Background()

	// Init PostgreSQL (authoritative store)
	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	if err := config.PostgresDB.AutoMigrate(
		&models.Conversation{},
		&models.Message{},
		&models.DocumentChunk{},
	); err != nil {
		log.WithError(err).Fatal("PostgreSQL migrate error")
	}
	log.Info("PostgreSQL connected")

	// Init Redis cache; fall back to in-process cache when unconfigured
	var kv cache.Cache
	if os.Getenv("REDIS_ADDR") != "" || os.Getenv("REDIS_URI") != "" || os.Getenv("REDIS_URL") != "" {
		if err := config.InitRedis(); err != nil {
			log.WithError(err).Fatal("Redis init error")
		}
		kv = cache.NewRedisCache(config.RedisClient)
		log.Info("Redis connected")
	} else {
		kv = cache.NewMemoryCache()
		log.Warn("Redis not configured; using in-process conversation cache")
	}

	// Init Mongo turn-audit log (optional)
	var turnLogs mongorepo.TurnLogRepository
	if os.Getenv("MONGO_URI") != "" {
		if err := config.InitMongo(); err != nil {
			log.WithError(err).Fatal("MongoDB init error")
		}
		if err := config.EnsureMongoIndexes(); err != nil {
			log.WithError(err).Fatal("MongoDB index error")
		}
		turnLogs = mongorepo.NewTurnLogRepo(config.MongoDatabase())
		log.Info("MongoDB connected")
	} else {
		log.Warn("MONGO_URI not set; turn auditing disabled")
	}

	// Generation collaborator
	provider, err := llm.NewVertexGemini(ctx,
		os.Getenv("GCP_PROJECT_ID"),
		os.Getenv("GCP_LOCATION"),
		os.Getenv("GEMINI_MODEL"),
	)
	if err != nil {
		log.WithError(err).Fatal("Vertex init error")
	}
	defer provider.Close()

	embedder := embeddings.NewHTTPEmbedder(
		os.Getenv("EMBEDDINGS_URL"),
		os.Getenv("EMBEDDINGS_API_KEY"),
	)

	counter := tokens.NewEstimator(envInt("TOKEN_LIMIT", tokens.DefaultLimit))
	convCache := cache.NewConversationCache(kv, envDuration("CACHE_TTL", cache.DefaultConversationTTL))

	convRepo := pgrepo.NewConversationRepo(config.PostgresDB)
	docRepo := pgrepo.NewDocumentRepo(config.PostgresDB)

	convos := services.NewConversationService(convRepo, convCache, log)
	retrieval := services.NewRetrievalService(docRepo, embedder, envInt("RETRIEVAL_TOP_K", 4))
	chat := services.NewChatService(convos, retrieval, provider, counter, turnLogs, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Conversation: handlers.NewConversationHandler(convos, chat),
		Chat:         handlers.NewChatHandler(convos, chat),
		WS:           handlers.NewWSHandler(convos, chat),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return def
}
