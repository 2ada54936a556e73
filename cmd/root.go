package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const configFile = "AtlasTraceConfig.yml"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "atlastrace",
	Short: "Retrieve and analyze RIPE Atlas traceroute measurements",
	Long: `atlastrace downloads traceroute measurement results and probe
connection history from RIPE Atlas, normalizes them into a flat table and
derives per-probe path and latency metrics over the measurement window.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		fmt.Printf("Error building logger: %v\n", err)
		os.Exit(1)
	}
	return logger.Sugar()
}
