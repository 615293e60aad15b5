package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"novalink/config"
	"novalink/core/events"
	"novalink/gateway"
	"novalink/native/credential"
	"novalink/native/escrow"
	"novalink/native/registry"
	"novalink/native/review"
	"novalink/observability"
	"novalink/observability/logging"
	"novalink/rpc"
	"novalink/state"
	"novalink/storage"
)

const rpcTokenEnv = "NOVALINK_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	withGateway := flag.Bool("gateway", true, "Serve the REST gateway alongside the RPC endpoint")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var logger *slog.Logger
	if strings.TrimSpace(cfg.LogFile) != "" {
		logger = logging.SetupFile("novalinkd", cfg.LogEnv, cfg.LogFile)
	} else {
		logger = logging.Setup("novalinkd", cfg.LogEnv)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager, err := state.NewManager(db)
	if err != nil {
		logger.Error("Failed to initialise state", slog.Any("error", err))
		os.Exit(1)
	}

	ledger, err := escrow.NewEngine(cfg.Currency)
	if err != nil {
		logger.Error("Failed to build escrow engine", slog.Any("error", err))
		os.Exit(1)
	}
	ledger.SetState(manager)
	ledger.SetArbitrator(cfg.Arbitrator)
	if err := ledger.SetFee(cfg.FeeBps, cfg.FeeTreasury); err != nil {
		logger.Error("Invalid fee configuration", slog.Any("error", err))
		os.Exit(1)
	}
	ledger.SetEmitter(events.MultiEmitter{
		observability.NewEventRecorder(logger),
		observability.NewMetricsEmitter(),
	})

	reviews := review.NewEngine(manager, ledger)
	tutors := registry.NewLedger(manager)
	credentials := credential.NewStore(manager)

	rpcServer := rpc.NewServer(rpc.Config{
		Ledger:      ledger,
		Reviews:     reviews,
		Tutors:      tutors,
		Credentials: credentials,
		AuthToken:   strings.TrimSpace(os.Getenv(rpcTokenEnv)),
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpcHTTP := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpcServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	servers := []*http.Server{rpcHTTP}

	var gatewayStore *gateway.SQLiteStore
	if *withGateway {
		gwCfg, err := gateway.LoadConfigFromEnv()
		if err != nil {
			logger.Error("Failed to load gateway config", slog.Any("error", err))
			os.Exit(1)
		}
		gatewayStore, err = gateway.NewSQLiteStore(gwCfg.DatabasePath)
		if err != nil {
			logger.Error("Failed to open gateway store", slog.Any("error", err))
			os.Exit(1)
		}
		defer gatewayStore.Close()

		gw := gateway.NewServer(gateway.ServerConfig{
			Ledger:      ledger,
			Reviews:     reviews,
			Tutors:      tutors,
			Credentials: credentials,
			Store:       gatewayStore,
			Auth:        gateway.NewAuthenticator(gwCfg.JWTSecret, gwCfg.JWTIssuer, gwCfg.JWTAudience, gwCfg.ClockSkew),
			Limiter:     gateway.NewRateLimiter(gwCfg.RequestsPerMinute, gwCfg.Burst),
			Logger:      logger,
		})
		listen := cfg.GatewayAddress
		if strings.TrimSpace(listen) == "" {
			listen = gwCfg.ListenAddress
		}
		servers = append(servers, &http.Server{
			Addr:              listen,
			Handler:           gw,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		logger.Info("Listening", slog.String("address", srv.Addr))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	logger.Info("Node started",
		slog.String("network", cfg.NetworkName),
		slog.String("currency", ledger.Currency()),
	)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.Error("Server failed", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown incomplete", slog.String("address", srv.Addr), slog.Any("error", err))
		}
	}
}
