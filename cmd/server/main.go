package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/1demilade/cocoa-disease-app/internal/config"
	"github.com/1demilade/cocoa-disease-app/internal/handlers"
	"github.com/1demilade/cocoa-disease-app/internal/imaging"
	"github.com/1demilade/cocoa-disease-app/internal/logger"
	"github.com/1demilade/cocoa-disease-app/internal/model"
	"github.com/1demilade/cocoa-disease-app/internal/provision"
	"github.com/1demilade/cocoa-disease-app/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Server.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Logger.Info("starting cocoa diagnosis server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	metadata, err := model.NewMetadata(cfg.Model)
	if err != nil {
		logger.Logger.Fatal("invalid model config", zap.Error(err))
	}

	interpolation, err := imaging.ParseInterpolation(cfg.Model.Interpolation)
	if err != nil {
		logger.Logger.Fatal("invalid model config", zap.Error(err))
	}

	modelPath, err := provision.New(cfg.Model.Path, cfg.Model.URL).Ensure(context.Background())
	if err != nil {
		logger.Logger.Fatal("failed to provision model", zap.Error(err))
	}

	modelServer, err := model.NewServer(modelPath, metadata, model.Options{
		Sessions:      cfg.Inference.Sessions,
		SharedLibrary: cfg.Inference.SharedLibrary,
	})
	if err != nil {
		logger.Logger.Fatal("failed to initialize model server", zap.Error(err))
	}
	defer modelServer.Close()

	predictService := service.NewPredictService(modelServer, interpolation)
	handler := handlers.NewHandler(predictService, handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})

	gin.SetMode(cfg.Server.Mode)
	r := handlers.SetupRoutes(handler, handlers.RouterOptions{
		StaticDir:          cfg.Server.StaticDir,
		MaxMultipartMemory: cfg.Server.MaxUpload,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
