package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jobhive/cv-insight/internal/config"
	"github.com/jobhive/cv-insight/internal/domain/fiber/handler"
	"github.com/jobhive/cv-insight/internal/middleware"
	"github.com/jobhive/cv-insight/internal/model"
	"github.com/jobhive/cv-insight/internal/ratelimit"
	"github.com/jobhive/cv-insight/internal/repository"
	"github.com/jobhive/cv-insight/internal/storage"
	"github.com/jobhive/cv-insight/internal/usecase"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Could not load .env file")
	}

	appConfig := config.LoadAppConfig()

	app := fiber.New(fiber.Config{
		AppName:   appConfig.Name,
		BodyLimit: int(config.LoadUploadConfig().MaxFileSize) + 1024*1024,
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			message := err.Error()
			if message == "" {
				message = "Internal Server Error"
			}
			return ctx.Status(code).JSON(fiber.Map{"success": false, "message": message})
		},
	})
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: appConfig.Env != "production",
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(pprof.New(pprof.Config{
		Next: func(c *fiber.Ctx) bool {
			return appConfig.Env == "production"
		},
	}))
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(middleware.RateLimiter(50, 1*time.Minute))

	db := connectDB()

	redisConfig := config.LoadRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})
	defer asynqClient.Close()

	store, err := storage.NewFromConfig(config.LoadStorageConfig())
	if err != nil {
		log.Fatal(err)
	}

	uploadConfig := config.LoadUploadConfig()
	analysisRepo := repository.NewAnalysisRepository(db)
	uc := usecase.NewAnalysisUsecase(analysisRepo, store, asynqClient, uploadConfig)

	authConfig := config.LoadAuthConfig()
	auth := middleware.Auth(authConfig.JWTSecret, authConfig.Issuer)
	uploadLimiter := middleware.UserRateLimiter(
		ratelimit.NewSlidingWindow(redisClient, uploadConfig.UploadsPerMinute, time.Minute, "uploads"))

	h := handler.NewAnalysisHandler(uc, uploadConfig, healthChecker(db, redisClient, store))
	h.RegisterRoutes(app, auth, uploadLimiter)

	log.Println("Server running on", appConfig.Port)
	if err := app.Listen(appConfig.Port); err != nil {
		log.Fatal(err)
	}
}

func connectDB() *gorm.DB {
	dbConfig := config.LoadDBConfig()
	appConfig := config.LoadAppConfig()

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
	pgDB, err := db.DB()
	if err != nil {
		log.Fatalf("Could not get database instance: %v", err)
	}
	if appConfig.Env != "production" {
		pgDB.SetMaxIdleConns(5)
		pgDB.SetMaxOpenConns(10)
		pgDB.SetConnMaxLifetime(30 * time.Minute)
	} else {
		pgDB.SetMaxIdleConns(20)
		pgDB.SetMaxOpenConns(200)
		pgDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&model.AnalysisRecord{}, &model.Job{}); err != nil {
		log.Fatal("migration failed: ", err)
	}
	return db
}

func healthChecker(db *gorm.DB, redisClient *redis.Client, store storage.Storage) handler.HealthChecker {
	return func(ctx context.Context) map[string]string {
		deps := map[string]string{}

		if sqlDB, err := db.DB(); err != nil {
			deps["database"] = "down: " + err.Error()
		} else if err := sqlDB.PingContext(ctx); err != nil {
			deps["database"] = "down: " + err.Error()
		} else {
			deps["database"] = "up"
		}

		if err := redisClient.Ping(ctx).Err(); err != nil {
			deps["redis"] = "down: " + err.Error()
		} else {
			deps["redis"] = "up"
		}

		if err := store.Healthy(ctx); err != nil {
			deps["storage"] = "down: " + err.Error()
		} else {
			deps["storage"] = "up"
		}

		aiConfig := config.LoadAIConfig()
		switch {
		case aiConfig.Provider == "gemini" && aiConfig.GeminiAPIKey != "":
			deps["ai"] = "configured (gemini)"
		case aiConfig.Provider == "openrouter" && aiConfig.OpenRouterAPIKey != "":
			deps["ai"] = "configured (openrouter)"
		default:
			deps["ai"] = "missing api key"
		}
		return deps
	}
}
