package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sphere/database"
	"sphere/logger"
	"sphere/middleware"
	"sphere/mining"
	"sphere/mq"
	"sphere/referral"
	"sphere/routes"
	"sphere/store"
	"sphere/tasks"
)

func main() {
	// Load .env if present (do not overwrite already-set environment variables).
	if envMap, err := godotenv.Read(); err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}

	if err := logger.Init(logger.Settings{
		Format: os.Getenv("LOG_FORMAT"),
		Level:  os.Getenv("LOG_LEVEL"),
		File:   os.Getenv("LOG_FILE"),
	}); err != nil {
		logger.WithError(err).Warnf("log file setup failed, logging to stdout only")
	}

	if os.Getenv("JWT_SECRET") == "" {
		logger.Fatalf("Required environment variable JWT_SECRET is not set")
	}

	// STORE_DRIVER=memory runs the API without MySQL, everything else
	// connects and migrates.
	var st store.Store
	if strings.EqualFold(os.Getenv("STORE_DRIVER"), "memory") {
		logger.Infof("using in-memory store")
		st = store.NewMemory()
	} else {
		for _, envVar := range []string{"DB_HOST", "DB_USER", "DB_PASS", "DB_NAME"} {
			if os.Getenv(envVar) == "" {
				logger.Fatalf("Required environment variable %s is not set", envVar)
			}
		}
		db, err := database.Connect()
		if err != nil {
			logger.WithError(err).Fatalf("failed to connect database")
		}
		if strings.ToLower(os.Getenv("ENV")) == "development" {
			logger.Infof("development mode - performing auto-migration")
			if err := database.Migrate(db); err != nil {
				logger.WithError(err).Fatalf("failed to migrate database")
			}
		}
		st = store.NewGorm(db)
	}

	// RabbitMQ when configured, otherwise an in-process queue
	var queue mq.Queue
	if url := os.Getenv("MQ_URL"); url != "" {
		rq, err := mq.NewRabbitMQ(url, os.Getenv("MQ_QUEUE"))
		if err != nil {
			logger.WithError(err).Fatalf("failed to connect message queue")
		}
		queue = rq
	} else {
		queue = mq.NewMemoryQueue(64)
	}
	defer queue.Close()

	limiter := middleware.NewActionLimiter(time.Minute, middleware.DefaultActionLimits)

	miningSvc := mining.NewService(st, limiter)
	referralSvc := referral.NewService(st, queue)
	defer referralSvc.Close()
	taskSvc := tasks.NewService(st)
	if err := taskSvc.Seed(context.Background()); err != nil {
		logger.WithError(err).Warnf("task seeding failed")
	}

	router := routes.InitRouter(routes.Deps{
		Store:    st,
		Mining:   miningSvc,
		Referral: referralSvc,
		Tasks:    taskSvc,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logger.Fields{"port": port}).Infof("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatalf("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatalf("server forced to shutdown")
	}
	logger.Infof("server exited")
}
