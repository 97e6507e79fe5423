package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"notestream/internal/chunkstore"
	"notestream/internal/config"
	"notestream/internal/database"
	"notestream/internal/middleware"
	"notestream/internal/modules/processing"
	"notestream/internal/modules/status"
	"notestream/internal/modules/statusfeed"
	"notestream/internal/modules/upload"
	"notestream/internal/pkg/ai"
	"notestream/internal/pkg/cryptobox"
	jwtsvc "notestream/internal/pkg/jwt"
	"notestream/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal(err)
	}

	chunks, err := chunkstore.New(cfg.StagingDir)
	if err != nil {
		log.Fatal(err)
	}

	fileRepo := repository.NewFileRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	noteRepo := repository.NewNoteRepository(db)

	hub := statusfeed.NewHub()

	aiClient := ai.New(cfg.OpenAIAPIKey, cfg.TranscribeModel, cfg.NotesModel)

	dispatcherOpts := []processing.DispatcherOption{
		processing.WithNotifier(hub),
	}
	if cfg.Async() {
		worker := processing.NewWorkerClient(cfg.WorkerURL, cfg.CallbackURL, cfg.DispatchMaxAttempts, cfg.WorkerRPS)
		dispatcherOpts = append(dispatcherOpts, processing.WithWorker(worker))
		log.Printf("dispatch_mode mode=async worker_url=%s", cfg.WorkerURL)
	} else {
		log.Printf("dispatch_mode mode=sync")
	}
	if len(cfg.EncryptionKey) > 0 {
		box, err := cryptobox.New(cfg.EncryptionKey)
		if err != nil {
			log.Fatal(err)
		}
		dispatcherOpts = append(dispatcherOpts, processing.WithCryptoBox(box))
	}
	dispatcher := processing.NewDispatcher(db, aiClient, dispatcherOpts...)
	reconciler := processing.NewReconciler(db, hub)

	uploadService := upload.NewService(db, chunks, dispatcher, cfg.StorageDir, cfg.MaxUploadBytes)
	uploadHandler := upload.NewHandler(uploadService)

	statusService := status.NewService(fileRepo, taskRepo, noteRepo)
	statusHandler := status.NewHandler(statusService)

	processingHandler := processing.NewHandler(reconciler)
	feedHandler := statusfeed.NewHandler(hub, fileRepo)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			chunks.Sweep(cfg.StagingTTL)
		}
	}()

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorLogger())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Webhook callbacks come from the worker, not a browser session.
		processing.RegisterRoutes(v1, processingHandler)

		authed := v1.Group("/")
		if cfg.JWTSecret != "" {
			j := jwtsvc.New(cfg.JWTSecret, 24*time.Hour)
			authed.Use(middleware.OptionalAuth(j))
		}
		{
			upload.RegisterRoutes(authed, uploadHandler)
			status.RegisterRoutes(authed, statusHandler)
			statusfeed.RegisterRoutes(authed, feedHandler)
		}
	}

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
