package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oi-breakout-bot/internal/engine"
	"oi-breakout-bot/internal/logger"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config")
	immediate := flag.Bool("immediate", false, "run the morning analysis at startup instead of waiting for the scheduled time")
	force := flag.Bool("force", false, "override the session gate outside market hours (DRY_RUN only)")
	flag.Parse()

	must(initializeSystem())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer shutdownTracer()

	cfg, err := loadConfig(ctx, *configPath)
	must(err)
	compressOldLogs(ctx)

	sys, err := buildSystem(ctx, cfg, *force)
	must(err)
	must(sys.selfCheck(ctx))

	go runHub(ctx, sys.hub)
	must(sys.broker.Start(ctx))

	must(sys.schedule(ctx))
	sys.cron.Start()

	if *immediate {
		logger.Info(ctx, "Running startup analysis")
		if _, err := sys.engine.PrepareDay(ctx); err != nil {
			logger.ErrorWithErr(ctx, "Startup analysis failed", err)
		}
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	step := time.NewTicker(time.Second)
	defer step.Stop()

	logger.Info(ctx, "Bot started", "mode", cfg.Mode, "index", cfg.Index.Name)
	for {
		select {
		case <-step.C:
			st, err := sys.engine.Step(ctx)
			if err != nil {
				logger.ErrorWithErr(ctx, "Step failed", err)
				continue
			}
			if st != nil && (st.State == engine.StateEntered || st.State == engine.StateExited) {
				b, _ := json.Marshal(st)
				fmt.Println(string(b))
			}
		case <-sigc:
			logger.Info(ctx, "Shutting down...")
			sys.shutdown(ctx)
			return
		case <-ctx.Done():
			sys.shutdown(ctx)
			return
		}
	}
}
