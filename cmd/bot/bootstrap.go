package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"oi-breakout-bot/internal/broker/brokerobs"
	"oi-breakout-bot/internal/broker/zerodha"
	"oi-breakout-bot/internal/decision"
	"oi-breakout-bot/internal/decision/decisionobs"
	"oi-breakout-bot/internal/engine"
	"oi-breakout-bot/internal/engine/engineobs"
	"oi-breakout-bot/internal/eod"
	"oi-breakout-bot/internal/eod/eodobs"
	"oi-breakout-bot/internal/feed"
	"oi-breakout-bot/internal/gtt"
	"oi-breakout-bot/internal/interfaces"
	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/market"
	"oi-breakout-bot/internal/nsedata"
	"oi-breakout-bot/internal/sched"
	"oi-breakout-bot/internal/store"
	"oi-breakout-bot/internal/trace"
	"oi-breakout-bot/internal/tradelog"
)

const holidayFetchTimeout = 20 * time.Second

type system struct {
	cfg      *store.Config
	hub      *feed.Hub
	broker   interfaces.Broker
	engine   interfaces.Engine
	calendar *market.Calendar
	history  *tradelog.History
	orders   *gtt.Manager
	cron     *sched.Runner
}

// initializeSystem wires up the process-wide pieces: env, logging and
// tracing, then the EOD summarizer behind its observability wrapper.
func initializeSystem() error {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		logger.Warn(context.Background(), "Tracing disabled", "error", err.Error())
	}

	eod.SetDefaultSummarizer(eodobs.Wrap(eod.NewSummarizer()))
	return nil
}

func shutdownTracer() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Failed to shutdown tracer", err)
	}
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Info(ctx, "Config loaded",
		"path", path,
		"mode", cfg.Mode,
		"index", cfg.Index.Name,
		"analysis_time", cfg.Strategy.AnalysisTime,
	)
	return cfg, nil
}

// compressOldLogs gzips journal files older than the retention window.
// TRADER_LOG_RETENTION_DAYS overrides the default of 30.
func compressOldLogs(ctx context.Context) {
	days := 30
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	if err := tradelog.CompressOlder(days); err != nil {
		logger.Warn(ctx, "Log compression failed", "error", err.Error())
	}
}

func buildSystem(ctx context.Context, cfg *store.Config, force bool) (*system, error) {
	hub := feed.NewHub(feed.Params{
		MaxLTP:       cfg.Feed.MaxLTP,
		MaxOptionLTP: cfg.Feed.MaxOptionLTP,
		StaleAfter:   time.Duration(cfg.Feed.StaleAfterSeconds) * time.Second,
		DropAfter:    time.Duration(cfg.Feed.DropAfterSeconds) * time.Second,
	})

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode, orders will be simulated")
	}
	kite := zerodha.NewZerodha(zerodha.Params{
		Mode:        cfg.Mode,
		APIKey:      os.Getenv("KITE_API_KEY"),
		AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
		Exchange:    cfg.Exchange,
		Index:       cfg.Index.Name,
	}, hub)
	broker := brokerobs.Wrap(kite)

	calendar, err := market.NewCalendar(cfg.Market.OpenTime, cfg.Market.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("failed to build market calendar: %w", err)
	}
	year := time.Now().In(time.FixedZone("IST", 19800)).Year()
	calendar.SetHolidays(market.FixedHolidays(year))
	calendar.LoadHolidays(ctx, market.NewHolidayFetcher(holidayFetchTimeout), year)

	history, err := tradelog.NewHistory(tradelog.DefaultHistoryPath())
	if err != nil {
		logger.Warn(ctx, "Trade history unavailable, starting empty", "error", err.Error())
	} else {
		logger.Info(ctx, "Loaded trade history", "trades", history.Len())
	}

	rules := decisionobs.Wrap(decision.New(ruleParams(cfg)))
	orders := gtt.NewManager(time.Duration(cfg.GTT.ExpirySeconds) * time.Second)

	eng, err := engine.New(engine.Params{
		Config:    cfg,
		Broker:    broker,
		Ticker:    kite.Ticker(),
		Rules:     rules,
		Prices:    hub,
		Orders:    orders,
		Chain:     nsedata.NewClient(),
		Calendar:  calendar,
		History:   history,
		ForceOpen: force,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	return &system{
		cfg:      cfg,
		hub:      hub,
		broker:   broker,
		engine:   engineobs.Wrap(eng),
		calendar: calendar,
		history:  history,
		orders:   orders,
		cron:     sched.New(newCronLogger(), ctx),
	}, nil
}

func ruleParams(cfg *store.Config) decision.Params {
	return decision.Params{
		StoplossPct:       cfg.Strategy.StoplossPct,
		RiskRewardRatio:   cfg.Strategy.RiskRewardRatio,
		MaxHoldingMinutes: cfg.Strategy.MaxHoldingMinutes,
		MinPremium:        cfg.Strategy.MinPremiumThreshold,
		Qty:               cfg.Strategy.LotSize,
		Trailing: decision.TrailingParams{
			Enabled:             cfg.Strategy.Trailing.Enabled,
			Mode:                cfg.Strategy.Trailing.Mode,
			Pct:                 cfg.Strategy.Trailing.Pct,
			ActivationProfitPct: cfg.Strategy.Trailing.ActivationProfitPct,
			LockFraction:        cfg.Strategy.Trailing.LockFraction,
		},
	}
}

func newCronLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// schedule registers the clock-driven jobs: the morning analysis at the
// configured time, the midnight state reset, and a minute-level EOD
// summary check.
func (s *system) schedule(ctx context.Context) error {
	at, err := time.Parse("15:04", s.cfg.Strategy.AnalysisTime)
	if err != nil {
		return fmt.Errorf("failed to parse analysis time %q: %w", s.cfg.Strategy.AnalysisTime, err)
	}
	analysisSpec := fmt.Sprintf("0 %d %d * * MON-FRI", at.Minute(), at.Hour())

	if _, err := s.cron.Add(analysisSpec, "morning-analysis", func(jobCtx context.Context) {
		if _, err := s.engine.PrepareDay(jobCtx); err != nil {
			logger.ErrorWithErr(jobCtx, "Morning analysis failed", err)
		}
	}); err != nil {
		return err
	}

	if _, err := s.cron.Add("0 0 0 * * *", "midnight-reset", func(jobCtx context.Context) {
		s.engine.ResetDay(jobCtx)
		compressOldLogs(jobCtx)
	}); err != nil {
		return err
	}

	if _, err := s.cron.Add("0 * * * * *", "eod-check", func(jobCtx context.Context) {
		if ok, _ := eod.ShouldRunNow(); !ok {
			return
		}
		path, err := eod.SummarizeToday()
		if err != nil {
			logger.ErrorWithErr(jobCtx, "EOD summary failed", err)
			return
		}
		if path != "" {
			logger.Info(jobCtx, "EOD summary written", "path", path)
		}
	}); err != nil {
		return err
	}

	return nil
}

// selfCheck verifies the process can actually run before the main loop
// starts: credentials, log directory writability, and in LIVE mode a
// broker round-trip. A dead session fails here, at startup, where the
// operator can refresh the access token.
func (s *system) selfCheck(ctx context.Context) error {
	apiKey := os.Getenv("KITE_API_KEY")
	accessToken := os.Getenv("KITE_ACCESS_TOKEN")
	if apiKey == "" || accessToken == "" {
		if s.cfg.Mode == "LIVE" {
			return errors.New("KITE_API_KEY / KITE_ACCESS_TOKEN missing: refresh the access token and restart")
		}
		logger.Warn(ctx, "Broker credentials missing, market data may be unavailable")
	}

	dir := tradelog.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("log directory %s not writable: %w", dir, err)
	}
	probe := filepath.Join(dir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("log directory %s not writable: %w", dir, err)
	}
	os.Remove(probe)

	if s.cfg.Mode == "LIVE" {
		if _, err := s.broker.LTP(ctx, s.cfg.Index.SpotSymbol); err != nil {
			return fmt.Errorf("broker unreachable, refresh the access token if expired: %w", err)
		}
	}

	now := time.Now()
	open, status := s.calendar.Status(now)
	fields := []any{
		"market_open", open,
		"status", status,
		"history_trades", s.history.Len(),
	}
	if !open {
		_, opensIn := s.calendar.TimeToOpen(now)
		fields = append(fields, "opens_in", opensIn)
	}
	logger.Info(ctx, "Self-check passed", fields...)
	return nil
}

func (s *system) shutdown(ctx context.Context) {
	s.cron.Stop()
	s.engine.Shutdown(ctx)
	if path, err := eod.SummarizeToday(); err != nil {
		logger.ErrorWithErr(ctx, "EOD summary failed", err)
	} else if path != "" {
		logger.Info(ctx, "EOD summary written", "path", path)
	}
	s.broker.Stop(ctx)
}

func runHub(ctx context.Context, hub *feed.Hub) {
	if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorWithErr(ctx, "Price hub stopped", err)
	}
}
