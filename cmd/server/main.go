package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shinra-Deskware/madzilla-backend/internal/checkout"
	"github.com/Shinra-Deskware/madzilla-backend/internal/config"
	"github.com/Shinra-Deskware/madzilla-backend/internal/events"
	"github.com/Shinra-Deskware/madzilla-backend/internal/gateway"
	ihttp "github.com/Shinra-Deskware/madzilla-backend/internal/http"
	"github.com/Shinra-Deskware/madzilla-backend/internal/otp"
	"github.com/Shinra-Deskware/madzilla-backend/internal/repository"
	"github.com/Shinra-Deskware/madzilla-backend/internal/scheduler"
	"github.com/Shinra-Deskware/madzilla-backend/internal/service"
	"github.com/Shinra-Deskware/madzilla-backend/internal/webhook"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.Migrations,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer repo.Close()
	if err := repo.RunMigrations(creds); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	otpStore := otp.NewRedisStore(redisClient)

	notifier := events.NewKafkaNotifier(cfg.KafkaTopic, logger, cfg.KafkaBrokers)
	defer notifier.Close()

	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, logger)
	verifier := checkout.NewVerifier(repository.NewCatalog(repo), cfg.ShippingFee, cfg.FreeShippingAbove, cfg.PriceMismatchHardFail, logger)

	orderService := service.NewOrderService(repo, verifier, gw, notifier, cfg.GatewayKeySecret, logger)
	returnService := service.NewReturnService(repo, repo, gw, notifier, logger)

	router := ihttp.NewRouter(ihttp.RouterConfig{
		Auth: ihttp.NewAuthHandler(otpStore, notifier, cfg.JWTSecret,
			time.Duration(cfg.OTPTTLSeconds)*time.Second,
			time.Duration(cfg.SessionHours)*time.Hour, logger),
		Payments:  ihttp.NewPaymentHandler(orderService),
		Orders:    ihttp.NewOrderHandler(orderService, returnService),
		Admin:     ihttp.NewAdminHandler(orderService, returnService),
		Webhook:   webhook.NewHandler(repo, notifier, cfg.GatewayWebhookSecret, logger),
		JWTSecret: cfg.JWTSecret,
		AdminKey:  cfg.AdminKey,
	})

	retrier := scheduler.NewRefundRetrier(repo, gw, notifier,
		time.Duration(cfg.RefundSweepSeconds)*time.Second, cfg.RefundSweepBatch, logger)
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	go retrier.Run(schedulerCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	return logger
}
