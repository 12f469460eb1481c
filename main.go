package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"quiz-session-service/internal/db"
	"quiz-session-service/internal/event"
	"quiz-session-service/internal/handlers"
	"quiz-session-service/internal/repository"
	"quiz-session-service/internal/service"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system env")
	}
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		log.Fatal("MONGO_URI is required")
	}
	db.InitMongo(mongoURI)

	cachePath := os.Getenv("FALLBACK_CACHE_PATH")
	if cachePath == "" {
		cachePath = "fallback_cache.db"
	}
	cache, err := repository.NewSQLiteCache(cachePath)
	if err != nil {
		log.Fatalf("Failed to open fallback cache: %v", err)
	}
	defer cache.Close()

	// RabbitMQ event publisher
	rabbitURL := os.Getenv("RABBITMQ_URI")
	eventExchange := os.Getenv("RABBITMQ_EXCHANGE")
	var publisher *event.EventPublisher
	if rabbitURL != "" && eventExchange != "" {
		publisher, err = event.NewEventPublisher(rabbitURL, eventExchange)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer publisher.Close()
	} else {
		log.Println("RabbitMQ not configured, session events will not be published")
	}

	database := db.Client.Database("quiz_sessions")

	recordRepo := repository.NewRecordRepository(database)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := recordRepo.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to create record indexes: %v", err)
	}
	cancel()

	contentRepo := repository.NewContentRepository(database)
	sessionService := service.NewSessionService(contentRepo, recordRepo, cache, publisher)
	sessionHandler := handlers.NewSessionHandler(sessionService)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "accept", "origin", "Cache-Control", "X-Requested-With", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	setupSessionRoutes(r, sessionHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "6666"
	}
	r.Run(":" + port)
}

func setupSessionRoutes(r *gin.Engine, sessionHandler *handlers.SessionHandler) {
	session := r.Group("/quiz/session")

	// Every session route needs an identified learner.
	session.Use(func(c *gin.Context) {
		if c.GetHeader("X-User-ID") == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "MISSING_USER_ID",
			})
			c.Abort()
			return
		}
		c.Next()
	})

	{
		// === SESSION LIFECYCLE ===
		session.POST("/", sessionHandler.StartSession)
		session.POST("/:token/restore-decision", sessionHandler.RestoreDecision)
		session.POST("/:token/retry", sessionHandler.StartRetry)
		session.POST("/:token/restart", sessionHandler.RestartFromScratch)
		session.DELETE("/:token", sessionHandler.Teardown)

		// === ANSWERING AND NAVIGATION ===
		session.GET("/:token/unit", sessionHandler.GetCurrentUnit)
		session.PUT("/:token/selection", sessionHandler.SetSelection)
		session.POST("/:token/submit", sessionHandler.SubmitUnit)
		session.POST("/:token/advance", sessionHandler.Advance)
		session.POST("/:token/retreat", sessionHandler.Retreat)
		session.POST("/:token/bookmark", sessionHandler.ToggleBookmark)
		session.POST("/:token/pause", sessionHandler.TogglePause)

		// === PERSISTENCE SIGNALS ===
		session.POST("/:token/flush", sessionHandler.Flush)

		// === STATUS ===
		session.GET("/:token/status", sessionHandler.GetStatus)
		session.GET("/:token/progress", sessionHandler.GetProgress)
	}

	// Sealed-record review lives outside the live-session tree.
	records := r.Group("/quiz/records")
	records.Use(func(c *gin.Context) {
		if c.GetHeader("X-User-ID") == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "MISSING_USER_ID",
			})
			c.Abort()
			return
		}
		c.Next()
	})
	records.GET("/completed", sessionHandler.GetCompletedRecord)
}

