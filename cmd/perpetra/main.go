package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atharvParlikar/perpetra/internal/account"
	"github.com/atharvParlikar/perpetra/internal/api"
	"github.com/atharvParlikar/perpetra/internal/config"
	"github.com/atharvParlikar/perpetra/internal/engine"
	"github.com/atharvParlikar/perpetra/internal/market"
	"github.com/atharvParlikar/perpetra/internal/risk"
	"github.com/atharvParlikar/perpetra/internal/util"
)

func main() {
	cfg, err := config.Load(os.Getenv("PERPETRA_CONFIG"), "")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()
	sugar := zlog.Sugar()
	sugar.Infow("config_loaded", "symbol", cfg.Market.Symbol, "listen_addr", cfg.API.ListenAddr)

	params := market.Default(cfg.Market.Symbol, cfg.Market.BaseAsset, cfg.Market.QuoteAsset)
	params.MaxLeverage = cfg.Engine.MaxLeverage
	params.MaintenanceMarginFraction = cfg.Risk.LiquidationThreshold
	params.FundingInterval = cfg.Risk.FundingInterval

	var store *account.Store
	if cfg.Persistence.Enabled {
		store, err = account.NewStore(cfg.Persistence.DBPath)
		if err != nil {
			sugar.Fatalw("failed to open account store", "err", err)
		}
		defer store.Close()
	}

	riskCfg := risk.Config{
		LiquidationThreshold: cfg.Risk.LiquidationThreshold,
		RiskTickInterval:     cfg.Risk.RiskTickInterval,
		FundingInterval:      cfg.Risk.FundingInterval,
		FundingRate:          cfg.Risk.FundingRate,
	}
	oracle := risk.NewSimulatedOracle(decimal.NewFromInt(60000))

	hub := api.NewHub(sugar)

	eng := engine.New(engine.Config{
		Market:       params,
		Risk:         riskCfg,
		QueueDepth:   cfg.Engine.QueueDepth,
		DecimalScale: cfg.Engine.DecimalScale,
		Store:        store,
		Oracle:       oracle,
		Clock:        util.RealClock{},
	}, sugar, api.TradeBroadcaster(hub), api.TopOfBookBroadcaster(hub))

	if err := eng.Start(); err != nil {
		sugar.Fatalw("failed to start engine", "err", err)
	}
	defer eng.Stop()

	auth := api.NewAuthenticator(cfg.API.JWTSecret)
	server := api.NewServer(eng, hub, auth, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.ListenAndServe(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api server failed", "err", err)
		}
	}()

	sugar.Infow("perpetra_started", "addr", cfg.API.ListenAddr, "symbol", params.Symbol)

	<-ctx.Done()
	sugar.Info("shutting down")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Logging.LogFile != "" {
		return util.NewLoggerWithFile(cfg.Logging.LogFile)
	}
	return util.NewLogger()
}
