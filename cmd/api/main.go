package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zerokoinhub/app-backend/internal/application/autopush"
	"github.com/Zerokoinhub/app-backend/internal/application/dispatch"
	"github.com/Zerokoinhub/app-backend/internal/application/scheduler"
	"github.com/Zerokoinhub/app-backend/internal/application/unlock"
	"github.com/Zerokoinhub/app-backend/internal/config"
	"github.com/Zerokoinhub/app-backend/internal/infrastructure/dynamo"
	jwtinfra "github.com/Zerokoinhub/app-backend/internal/infrastructure/jwt"
	"github.com/Zerokoinhub/app-backend/internal/infrastructure/push"
	s3infra "github.com/Zerokoinhub/app-backend/internal/infrastructure/s3"
	transporthttp "github.com/Zerokoinhub/app-backend/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider (optional — graceful fallback if keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// S3 store.
	s3Client := s3infra.NewClient(cfg)
	s3Store := s3infra.NewStore(s3Client, cfg.S3BucketName)

	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	deviceRepo := dynamo.NewDeviceRepo(dynamoClient, cfg.DynamoTables.Devices)
	notifRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)

	dispatcher := dispatch.NewService(dispatch.ServiceDeps{
		UserRepo:   userRepo,
		DeviceRepo: deviceRepo,
		Sender:     push.NewExpoSender(),
		ImageStore: s3Store,
	})

	autopushSvc := autopush.NewService(autopush.ServiceDeps{
		NotificationRepo: notifRepo,
		Dispatcher:       dispatcher,
		Pacing:           cfg.DispatchPacing,
	})
	unlockSvc := unlock.NewService(unlock.ServiceDeps{
		UserRepo:   userRepo,
		DeviceRepo: deviceRepo,
		Dispatcher: dispatcher,
	})

	notifRuntime := scheduler.NewRuntime("notifications", cfg.NotificationScanInterval, autopushSvc.ScanOnce)
	sessionRuntime := scheduler.NewRuntime("sessions", cfg.SessionScanInterval, unlockSvc.ScanOnce)
	notifRuntime.Start()
	sessionRuntime.Start()

	deps := &transporthttp.Deps{
		UserRepo:         userRepo,
		DeviceRepo:       deviceRepo,
		NotificationRepo: notifRepo,
		S3Store:          s3Store,
		JWTProvider:      jwtProvider,
		Runtimes:         []*scheduler.Runtime{notifRuntime, sessionRuntime},
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	notifRuntime.Stop()
	sessionRuntime.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
