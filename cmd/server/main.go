package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TimurManjosov/gotreasury/internal/api"
	"github.com/TimurManjosov/gotreasury/internal/audit"
	"github.com/TimurManjosov/gotreasury/internal/authz"
	"github.com/TimurManjosov/gotreasury/internal/chain"
	"github.com/TimurManjosov/gotreasury/internal/compliance"
	"github.com/TimurManjosov/gotreasury/internal/config"
	"github.com/TimurManjosov/gotreasury/internal/coordinator"
	"github.com/TimurManjosov/gotreasury/internal/snapshot"
	"github.com/TimurManjosov/gotreasury/internal/store"
	"github.com/TimurManjosov/gotreasury/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	telemetry.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.NewStore(ctx, cfg.StoreType, cfg.DatabaseDSN, cfg.IntervalPolicy)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	// Chain collaborators: the in-process simulator for development, the
	// HTTP gateway for real deployments.
	var (
		chainState coordinator.ChainState
		ledger     coordinator.Ledger
	)
	switch cfg.ChainMode {
	case "gateway":
		gw := chain.NewGatewayClient(cfg.GatewayURL)
		chainState, ledger = gw, gw
	default:
		sim := chain.NewSimulator(time.Now().Unix())
		chainState, ledger = sim, sim
	}

	signers := make(authz.StaticSignerList, len(cfg.Signers))
	for _, addr := range cfg.Signers {
		signers[addr] = true
	}
	verifier := newVerifier(cfg, signers)

	auditor := audit.NewService(&audit.LogSink{})
	defer auditor.Close()

	gate := compliance.NewGate(compliance.NewMemorySource())

	// initial snapshot
	list, err := st.ListRules(ctx)
	if err != nil {
		log.Fatalf("load rules: %v", err)
	}
	s := snapshot.Build(list)
	snapshot.Update(s)
	log.Printf("snapshot: %d rules, etag=%s", len(s.Rules), s.ETag)

	coord := coordinator.New(st, chainState, ledger, gate, auditor, coordinator.Config{
		Treasury:     cfg.TreasuryAddress,
		PollInterval: cfg.PollInterval,
		Workers:      cfg.Workers,
	})
	go coord.Run(ctx)

	// API server with deps
	srvAPI := api.NewServer(st, verifier, auditor, cfg.AdminAPIKey, cfg.RateLimitPerIP)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srvAPI.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Printf("metrics on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel() // stops the coordinator; in-flight evaluations finish
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()
	_ = srv.Shutdown(ctxShut)
	_ = metricsSrv.Shutdown(ctxShut)
	log.Println("stopped")
}

func newVerifier(cfg *config.Config, signers authz.StaticSignerList) *authz.Verifier {
	domain := authz.Domain{
		Name:     cfg.DomainName,
		Version:  cfg.DomainVersion,
		ChainID:  cfg.ChainID,
		Contract: cfg.ContractAddress,
	}
	return authz.NewVerifier(domain, signers)
}
