package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/server"
)

func main() {
	var (
		watch    = flag.String("watch", os.Getenv("WATCH_DIRS"), "comma-separated directories to watch for new documents")
		mode     = flag.String("watch-mode", "auto", "pipe mode for watched documents: auto|txt|ocr")
		debounce = flag.Duration("debounce", 500*time.Millisecond, "coalesce file events within this window")
		debug    = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	// Setup structured logger that outputs messages with variables but no time/level
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove time and level attributes, keep message and other variables
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := server.Options{WatchMode: *mode, Debounce: *debounce}
	for _, d := range strings.Split(*watch, ",") {
		if d = strings.TrimSpace(d); d != "" {
			opts.WatchRoots = append(opts.WatchRoots, d)
		}
	}

	if err := server.Run(ctx, cfg, opts, logger); err != nil {
		logger.Error("docrouterd stopped with error", "error", err)
		os.Exit(1)
	}
}
