package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/pelagis-survey/pelagis/internal/config"
	"github.com/pelagis-survey/pelagis/internal/gps"
	"github.com/pelagis-survey/pelagis/internal/monitor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	if cfg.Debug {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := gps.NewReader(logger, gps.ReaderOptions{
		Candidates:     cfg.SerialPorts,
		BaudRate:       cfg.BaudRate,
		ReadTimeout:    cfg.ReadTimeout,
		ContactTimeout: cfg.ContactTimeout,
	}, nil)
	go reader.Run(ctx)

	p := tea.NewProgram(monitor.NewModel(reader), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running application: %v\n", err)
		os.Exit(1)
	}
}
