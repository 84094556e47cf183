package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"receiptbot/internal/bot"
	"receiptbot/internal/common"
	"receiptbot/internal/dialog"
	"receiptbot/internal/export"
	"receiptbot/internal/extract"
	"receiptbot/internal/llm"
	"receiptbot/internal/ocr"
	"receiptbot/internal/repository"
	"receiptbot/internal/session"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// .env is optional; real deployments use the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env", "error", err)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := repository.EnsureSchema(ctx, pool, logger); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	payments := repository.NewPaymentRepository(pool, logger)

	visionClient := llm.NewClient(llm.Config{
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	ocrExtractor := ocr.NewExtractor(ocr.Config{
		Tesseract:   cfg.OCR.Tesseract,
		Languages:   cfg.OCR.Languages,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
		OEM:         cfg.OCR.OEM,
	}, logger)

	orchestrator := extract.NewOrchestrator(visionClient, ocrExtractor, logger)
	sessions := session.NewStore()
	machine := dialog.NewMachine(payments, logger)
	exporter := export.NewService(payments, logger)

	api := bot.NewAPI(bot.APIConfig{
		Token: cfg.Telegram.Token,
		// keep the HTTP timeout above the long-poll window
		Timeout: cfg.Telegram.PollTimeout + 30*time.Second,
	}, logger)

	b := bot.New(bot.Config{
		PollTimeout:  cfg.Telegram.PollTimeout,
		PreferVision: cfg.LLM.PreferVision,
	}, api, orchestrator, machine, sessions, payments, exporter, logger)

	logger.Info("receiptbot starting",
		"prefer_vision", cfg.LLM.PreferVision,
		"ocr_languages", cfg.OCR.Languages,
	)
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bot stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("receiptbot stopped")
}
