package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dvloznov/statement-parser/internal/config"
	"github.com/dvloznov/statement-parser/internal/logger"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
	log     = zerolog.Nop()

	rootCmd = &cobra.Command{
		Use:   "cli",
		Short: "Parse bank statement CSV and PDF files into transactions",
		Long: `Parses bank statement exports (CSV or text-based PDF) into a canonical
JSON array of transactions: date, description, amount, currency,
merchant_raw, source.

Files may be local paths or gs://bucket/object URIs.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./parser.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().Float64("max-reject-ratio", 0.5, "share of rejected rows above which a file fails")
	rootCmd.PersistentFlags().Int("max-mb", 10, "largest accepted file in MiB")
	rootCmd.PersistentFlags().String("model", "", "enable model hints with provider:model, e.g. google:gemini-2.5-flash")

	// Bind flags to viper
	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = v.BindPFlag("pipeline.max_reject_ratio", rootCmd.PersistentFlags().Lookup("max-reject-ratio"))
	_ = v.BindPFlag("upload.max_mb", rootCmd.PersistentFlags().Lookup("max-mb"))

	// Add commands
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(batchCmd())
}

func main() {
	// Set up signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		v.Set("assist.enabled", true)
		v.Set("assist.model", model)
	}

	loaded, err := config.LoadViper(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	l, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	log = l
	cmd.SetContext(logger.WithContext(cmd.Context(), log))
	return nil
}
