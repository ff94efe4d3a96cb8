package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"notify-mail-relay-go/internal/config"
	"notify-mail-relay-go/internal/db"
	"notify-mail-relay-go/internal/service"
	"notify-mail-relay-go/internal/service/supervisor"
	"notify-mail-relay-go/internal/store"
)

const shutdownTimeout = 30 * time.Second

// setupLogging applies the logging section of the configuration
func setupLogging(cfg config.LoggingConfig) {
	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	applyLevel(cfg.Level)
}

func applyLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", level)
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

// load reads and validates the configuration and sets up logging
func load(configFile string) (*config.Config, error) {
	cfg, v, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	setupLogging(cfg.Logging)
	if v.ConfigFileUsed() != "" {
		config.WatchLogLevel(v, applyLevel)
	}
	return cfg, nil
}

// Run initializes and starts the relay service and blocks until SIGINT or SIGTERM
func Run(configFile string) error {
	cfg, err := load(configFile)
	if err != nil {
		return err
	}

	logrus.Info("Starting Notify Mail Relay Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := BuildContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}

	return container.Invoke(func(
		dbConn *gorm.DB,
		engine *gin.Engine,
		configs *store.ConfigStore,
		pipeline *service.Pipeline,
		sup *supervisor.Supervisor,
	) error {
		srv := &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		if configs.IsEnabled() {
			pipeline.Start()
		}
		sup.Boot()

		serverErr := make(chan error, 1)
		go func() {
			logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()

		if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			logrus.Debugf("sd_notify READY failed: %v", err)
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		var runErr error
		select {
		case <-quit:
		case runErr = <-serverErr:
			logrus.Errorf("HTTP server error: %v", runErr)
		}

		logrus.Info("Shutting down server...")
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := sup.Stop(); err != nil {
			logrus.Errorf("Failed to stop supervisor: %v", err)
		}
		pipeline.Stop()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("HTTP server shutdown error: %v", err)
		}
		if err := pipeline.Wait(shutdownCtx); err != nil {
			logrus.Warn("Deliveries still running at shutdown, they stay pending until the next start")
		}
		cancel()

		if err := db.Close(dbConn); err != nil {
			logrus.Errorf("Failed to close database: %v", err)
		}

		logrus.Info("Server stopped gracefully")
		return runErr
	})
}
