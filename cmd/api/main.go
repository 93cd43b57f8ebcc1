package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/config"
	"github.com/noah-isme/gradeflow-api/internal/database"
	"github.com/noah-isme/gradeflow-api/internal/handler"
	"github.com/noah-isme/gradeflow-api/internal/middleware"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/queue"
	"github.com/noah-isme/gradeflow-api/internal/repository"
	"github.com/noah-isme/gradeflow-api/internal/router"
	"github.com/noah-isme/gradeflow-api/internal/service"
	"github.com/noah-isme/gradeflow-api/internal/worker"
	"github.com/noah-isme/gradeflow-api/pkg/ai"
	"github.com/noah-isme/gradeflow-api/pkg/blob"
	cloud "github.com/noah-isme/gradeflow-api/pkg/cloudinary"
	"github.com/noah-isme/gradeflow-api/pkg/ocr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Explicit migration at process start; no lazy table bootstrap.
	if err := db.AutoMigrate(&models.Exam{}, &models.ExamQuestion{}, &models.Submission{}, &models.QuestionEvaluation{}, &models.RubricRef{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	defer natsConn.Close()

	rubricStore, err := blob.New(blob.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create rubric blob store: %v", err)
	}

	if err := rubricStore.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed to ensure rubric bucket: %v", err)
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	extractor, err := ocr.NewOpenAIExtractor(ocr.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OcrModel,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to create ocr extractor: %v", err)
	}

	scorer, err := ai.NewOpenAIScorer(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.ScoringModel,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to create ai scorer: %v", err)
	}

	pipelineQueue, err := queue.NewNATSQueue(natsConn, cfg.QueueSubject, cfg.QueueGroup, logger)
	if err != nil {
		log.Fatalf("failed to create pipeline queue: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	rubricRepo := repository.NewRubricRepository(db)
	examRepo := repository.NewExamRepository(db)

	rubricService := service.NewRubricService(rubricRepo, rubricStore, validate, logger)
	intakeService := service.NewIntakeService(submissionRepo, examRepo, pipelineQueue, uploader, validate, logger)
	resultService := service.NewResultService(submissionRepo, evaluationRepo, redisClient, cfg.ResultCacheTTL, logger)
	pipelineService := service.NewPipelineService(submissionRepo, evaluationRepo, examRepo, rubricService, extractor, scorer, pipelineQueue, service.PipelineConfig{
		RetryCeiling: cfg.RetryCeiling,
		BackoffBase:  cfg.BackoffBase,
		OcrTimeout:   cfg.OcrTimeout,
		ScoreTimeout: cfg.ScoreTimeout,
		ScoreRetries: cfg.ScoreRetries,
	}, logger)

	intakeHandler := handler.NewIntakeHandler(intakeService, validate, logger)
	resultHandler := handler.NewResultHandler(resultService, logger)
	rubricHandler := handler.NewRubricHandler(rubricService, validate, logger)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	pool := worker.NewPool(pipelineQueue, pipelineService, cfg.WorkerCount, logger)
	if err := pool.Start(workerCtx); err != nil {
		log.Fatalf("failed to start worker pool: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    32 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		IntakeHandler: intakeHandler,
		ResultHandler: resultHandler,
		RubricHandler: rubricHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopWorkers, pool)
}

func waitForShutdown(app *fiber.App, stopWorkers context.CancelFunc, pool *worker.Pool) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	stopWorkers()
	pool.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
