package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jobhive/cv-insight/internal/config"
	"github.com/jobhive/cv-insight/internal/repository"
	"github.com/jobhive/cv-insight/internal/service"
	"github.com/jobhive/cv-insight/internal/storage"
	"github.com/jobhive/cv-insight/internal/worker"
)

// staleThreshold is how long a record may sit in processing before the sweep
// declares the run lost and fails it.
const staleThreshold = 15 * time.Minute

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Could not load .env file")
	}

	db := connectDB()
	analysisRepo := repository.NewAnalysisRepository(db)
	jobRepo := repository.NewJobRepository(db)

	store, err := storage.NewFromConfig(config.LoadStorageConfig())
	if err != nil {
		log.Fatal(err)
	}

	uploadConfig := config.LoadUploadConfig()
	extractor := service.NewExtractService(store,
		uploadConfig.MaxPages,
		uploadConfig.MaxTextLength,
		uploadConfig.MinTextLength,
		uploadConfig.ExtractTimeout,
	)

	aiConfig := config.LoadAIConfig()
	var ai service.AIClient
	var embedder worker.Embedder
	switch aiConfig.Provider {
	case "openrouter":
		ai = service.NewOpenRouterService(aiConfig)
	default:
		gemini, err := service.NewGeminiService(context.Background(), aiConfig)
		if err != nil {
			log.Fatal(err)
		}
		ai = gemini
		embedder = gemini
	}

	processor := worker.NewProcessor(analysisRepo, extractor, ai, jobRepo, embedder)

	go reapLoop(analysisRepo)

	redisConfig := config.LoadRedisConfig()
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisConfig.Addr,
			Password: redisConfig.Password,
			DB:       redisConfig.DB,
		},
		asynq.Config{
			Concurrency: 10,
		},
	)

	log.Println("Worker running")
	if err := srv.Run(processor.Handler()); err != nil {
		log.Fatal(err)
	}
}

// reapLoop periodically fails records stuck in processing, covering runs
// whose terminal write was lost to a crash or DB outage.
func reapLoop(repo *repository.AnalysisRepository) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		reaped, err := repo.ReapStale(ctx, staleThreshold)
		cancel()
		if err != nil {
			log.Printf("stale sweep failed: %v", err)
			continue
		}
		if reaped > 0 {
			log.Printf("stale sweep failed %d stuck records", reaped)
		}
	}
}

func connectDB() *gorm.DB {
	dbConfig := config.LoadDBConfig()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Name,
		dbConfig.Port,
		dbConfig.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	return db
}
