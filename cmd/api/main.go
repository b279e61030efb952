package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/statement-parser/internal/api/handlers"
	"github.com/dvloznov/statement-parser/internal/api/middleware"
	"github.com/dvloznov/statement-parser/internal/assist"
	"github.com/dvloznov/statement-parser/internal/config"
	"github.com/dvloznov/statement-parser/internal/extract"
	"github.com/dvloznov/statement-parser/internal/logger"
	"github.com/dvloznov/statement-parser/internal/pipeline"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to a YAML config file (default: ./parser.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.Default()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		bootLog := logger.Default()
		bootLog.Fatal().Err(err).Msg("Failed to create logger")
	}

	parser, err := pipeline.NewParser(pipeline.Options{
		MaxBytes:       cfg.MaxUploadBytes(),
		MaxRejectRatio: cfg.Pipeline.MaxRejectRatio,
		SampleRows:     cfg.Pipeline.SampleRows,
		CSV: extract.CSVConfig{
			SampleLines:    cfg.CSV.SampleLines,
			MinConsistency: cfg.CSV.MinConsistency,
		},
		PDF: extract.PDFConfig{
			LineTolerance:     cfg.PDF.LineTolerance,
			ColumnGap:         cfg.PDF.ColumnGap,
			MinRowConsistency: cfg.PDF.MinRowConsistency,
		},
		Synonyms: cfg.Synonyms(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create parser")
	}

	advisors := assist.NewFactory(assist.Config{
		Enabled: cfg.Assist.Enabled,
		Model:   cfg.Assist.Model,
		APIKey:  cfg.Assist.APIKey,
		Timeout: cfg.Assist.Timeout,
	})
	if err := advisors.Warm(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Model assist unavailable - parsing without hints")
	}

	// Initialize handlers
	parseHandler := handlers.NewParseHandler(parser, advisors, cfg.Server.MaxConcurrent, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/parse", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			parseHandler.Parse(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			handlers.Health(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	port := strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("port", port).
			Int("max_concurrent", cfg.Server.MaxConcurrent).
			Int64("max_upload_bytes", cfg.MaxUploadBytes()).
			Bool("assist", cfg.Assist.Enabled).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
