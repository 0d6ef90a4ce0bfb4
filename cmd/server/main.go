package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"syscall"

	"github.com/paypro-bridge/internal/app"
	"github.com/paypro-bridge/internal/config"
	"github.com/paypro-bridge/internal/logger"
	"github.com/paypro-bridge/internal/models"
	"github.com/paypro-bridge/internal/payment/paypro"
	"github.com/paypro-bridge/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	var mode string
	var envFile string
	flag.StringVar(&mode, "mode", app.ModeAll, "run mode: all (default), api, worker")
	flag.StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before config")
	flag.Parse()

	envErr := godotenv.Load(envFile)

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	runMode, err := app.ParseMode(mode)
	if err != nil {
		stdLog.Fatalf("%v", err)
	}
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warnw("dotenv_load_failed", "file", envFile, "error", envErr)
	}

	if err := paypro.ValidateConfig(provider.PayProConfig(cfg.PayPro)); err != nil {
		if cfg.Server.Mode == "release" {
			stdLog.Fatalf("paypro config invalid: %v", err)
		}
		logger.Warnw("paypro_config_incomplete", "error", err)
	}
	if cfg.Callback.Username == "" && cfg.Callback.Password == "" && cfg.Callback.PasswordHash == "" {
		logger.Warnw("paypro_invoice_callback_unauthenticated")
	}

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("database init failed: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("database migrate failed: %v", err)
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    runMode,
	}); err != nil {
		stdLog.Fatalf("server exited: %v", err)
	}
}
