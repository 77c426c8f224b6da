// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/settlement/amm"
	"github.com/luxfi/settlement/api"
	"github.com/luxfi/settlement/bridge"
	"github.com/luxfi/settlement/config"
	"github.com/luxfi/settlement/events"
	"github.com/luxfi/settlement/logging"
	"github.com/luxfi/settlement/token"
)

func main() {
	configPath := flag.String("config", "settled.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	recorder := events.NewRecorder()
	emitter := events.Multi(recorder, events.NewZapEmitter(logger))

	vault := token.NewVault()
	store := bridge.NewRecordStore(memdb.New())

	validators := make([]common.Address, 0, len(cfg.Bridge.Validators))
	for _, v := range cfg.Bridge.Validators {
		validators = append(validators, common.HexToAddress(v))
	}

	exchange, err := amm.NewExchange(amm.ExchangeConfig{
		Owner:       common.HexToAddress(cfg.AMM.Owner),
		Custody:     common.HexToAddress(cfg.AMM.Custody),
		FlashFeeBps: cfg.AMM.FlashFeeBps,
		Ledger:      vault,
		Emitter:     emitter,
	})
	if err != nil {
		logger.Fatal("Unable to initialize exchange", zap.Error(err))
	}

	// The gateway shares the vault with the exchange, so it treats the
	// exchange's flash-loan window as its own busy state.
	gateway, err := bridge.NewGateway(bridge.GatewayConfig{
		Owner:         common.HexToAddress(cfg.Bridge.Owner),
		Custody:       common.HexToAddress(cfg.Bridge.Custody),
		FeeSink:       common.HexToAddress(cfg.Bridge.FeeSink),
		DepositFeeBps: cfg.Bridge.DepositFeeBps,
		Validators:    validators,
		Threshold:     cfg.Bridge.Threshold,
		Ledger:        vault,
		Store:         store,
		Emitter:       emitter,
		Busy:          exchange,
	})
	if err != nil {
		logger.Fatal("Unable to initialize bridge gateway", zap.Error(err))
	}

	server := api.NewServer(gateway, exchange, recorder, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("Query API listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	logger.Info("Settlement daemon stopped")
}
