package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pelagis-survey/pelagis/internal/config"
	"github.com/pelagis-survey/pelagis/internal/merge"
	"github.com/pelagis-survey/pelagis/internal/store"
)

func main() {
	sessionA := flag.String("a", "", "First source session directory")
	sessionB := flag.String("b", "", "Second source session directory")
	output := flag.String("out", "", "Output session directory (created if missing)")
	cutoff := flag.String("cutoff", "", "Only merge records from this date on, inclusive (YYYY-MM-DD)")
	gpsA := flag.Bool("gps-a", true, "Include the GPS track of session A")
	gpsB := flag.Bool("gps-b", true, "Include the GPS track of session B")
	flag.Parse()

	if *sessionA == "" || *sessionB == "" || *output == "" {
		fmt.Println("Error: -a, -b and -out are all required.")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	opts := merge.Options{IncludeGPSA: *gpsA, IncludeGPSB: *gpsB}
	if *cutoff != "" {
		day, err := time.Parse("2006-01-02", *cutoff)
		if err != nil {
			fmt.Printf("Error: bad -cutoff %q, want YYYY-MM-DD.\n", *cutoff)
			os.Exit(1)
		}
		opts.CutoffDate = &day
	}

	a, err := store.Open(resolve(cfg.SessionDir, *sessionA))
	if err != nil {
		logger.Fatal("Failed to open session A", zap.Error(err))
	}
	defer a.Close()
	b, err := store.Open(resolve(cfg.SessionDir, *sessionB))
	if err != nil {
		logger.Fatal("Failed to open session B", zap.Error(err))
	}
	defer b.Close()
	out, err := store.Create(resolve(cfg.SessionDir, *output))
	if err != nil {
		logger.Fatal("Failed to create output session", zap.Error(err))
	}
	defer out.Close()

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	opts.Progress = func(pct int) {
		fmt.Printf("\r%s %3d%%", bar.ViewAs(float64(pct)/100.0), pct)
	}

	merger := merge.New(logger, a, b, out, opts)
	if err := merger.Run(context.Background()); err != nil {
		fmt.Println()
		logger.Fatal("Merge failed, output session left partial", zap.Error(err))
	}
	fmt.Println()
	logger.Info("Merged sessions",
		zap.String("a", *sessionA),
		zap.String("b", *sessionB),
		zap.String("out", *output))
}

// resolve anchors relative session paths at the configured session root.
func resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, _ := cfg.Build()
	return logger
}
