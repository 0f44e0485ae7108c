package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drc20-indexer/internal/chain"
	"drc20-indexer/internal/consensus"
	"drc20-indexer/internal/observability"
	"drc20-indexer/internal/reconcile"
	"drc20-indexer/internal/scanner"
	"drc20-indexer/internal/storage"
	chstore "drc20-indexer/internal/storage/clickhouse"
	"drc20-indexer/internal/storage/memory"
	"drc20-indexer/internal/storage/migrations"
	pgstore "drc20-indexer/internal/storage/postgres"
)

func main() {
	rpcEndpoint := flag.String("rpc-endpoint", "http://localhost:22555", "Node RPC HTTP endpoint")
	rpcUser := flag.String("rpc-user", "", "Node RPC username")
	rpcPass := flag.String("rpc-pass", "", "Node RPC password")
	wsEndpoint := flag.String("ws-endpoint", "", "Node WebSocket block notification endpoint (optional)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse DSN for the operation archive (optional)")
	genesisHeight := flag.Int64("genesis-height", 4609000, "First height to scan when no checkpoint exists")
	confirmations := flag.Int64("confirmations", 12, "Blocks behind the tip to stay")
	pollInterval := flag.Duration("poll-interval", 30*time.Second, "New-block poll interval")
	dustThreshold := flag.Int64("dust-threshold", consensus.DefaultDustThreshold, "Minimum bound-output value in koinu")
	overMint := flag.String("over-mint-policy", "reject", "Policy when a mint exceeds remaining supply: reject or clamp")
	reconcileEndpoint := flag.String("reconcile-endpoint", "", "External record source base URL (optional)")
	reconcileInterval := flag.Duration("reconcile-interval", 1*time.Hour, "Reconciliation sweep interval")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[scan] ", log.LstdFlags|log.Lshortfile)

	policy := consensus.Policy{DustThreshold: *dustThreshold}
	switch *overMint {
	case "reject":
		policy.OverMint = consensus.OverMintReject
	case "clamp":
		policy.OverMint = consensus.OverMintClamp
	default:
		logger.Fatalf("Unknown over-mint policy: %s", *overMint)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err := run(ctx, logger, runConfig{
		rpcEndpoint:       *rpcEndpoint,
		rpcUser:           *rpcUser,
		rpcPass:           *rpcPass,
		wsEndpoint:        *wsEndpoint,
		postgresDSN:       *postgresDSN,
		clickhouseDSN:     *clickhouseDSN,
		genesisHeight:     *genesisHeight,
		confirmations:     *confirmations,
		pollInterval:      *pollInterval,
		policy:            policy,
		reconcileEndpoint: *reconcileEndpoint,
		reconcileInterval: *reconcileInterval,
		useMemory:         *useMemory,
	})

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Scanner failed: %v", err)
	}
	logger.Println("Shutdown complete")
}

type runConfig struct {
	rpcEndpoint       string
	rpcUser           string
	rpcPass           string
	wsEndpoint        string
	postgresDSN       string
	clickhouseDSN     string
	genesisHeight     int64
	confirmations     int64
	pollInterval      time.Duration
	policy            consensus.Policy
	reconcileEndpoint string
	reconcileInterval time.Duration
	useMemory         bool
}

func run(ctx context.Context, logger *log.Logger, cfg runConfig) error {
	var (
		ledgerStore storage.LedgerStore
		opStore     storage.OperationStore
		recStore    storage.ReconciliationStore
	)

	if cfg.useMemory {
		store := memory.NewStore()
		ledgerStore, opStore = store, store
		recStore = memory.NewReconciliationStore()
		logger.Println("Using in-memory storage")
	} else {
		if cfg.postgresDSN == "" {
			logger.Fatal("PostgreSQL DSN required (or pass --use-memory)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return err
		}
		ledgerStore = pgstore.NewLedgerStore(pool)
		opStore = pgstore.NewOperationStore(pool)
		recStore = pgstore.NewReconciliationStore(pool)
	}

	var archiver scanner.Archiver
	if cfg.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
		if err != nil {
			return err
		}
		defer conn.Close()
		archiver = chstore.NewOperationArchive(conn)
		logger.Println("Operation archive enabled")
	}

	opts := []chain.ClientOption{}
	if cfg.rpcUser != "" {
		opts = append(opts, chain.WithBasicAuth(cfg.rpcUser, cfg.rpcPass))
	}
	rpc := chain.NewHTTPClient(cfg.rpcEndpoint, opts...)

	var notify <-chan chain.BlockNotification
	if cfg.wsEndpoint != "" {
		notifier := chain.NewBlockNotifier(cfg.wsEndpoint, nil, logger)
		ch, err := notifier.Subscribe(ctx)
		if err != nil {
			logger.Printf("Block notifier unavailable, polling only: %v", err)
		} else {
			notify = ch
			logger.Println("Subscribed to block notifications")
		}
	}

	if cfg.reconcileEndpoint != "" {
		auditor := reconcile.New(reconcile.Options{
			Ledger:     ledgerStore,
			Operations: opStore,
			Records:    recStore,
			Source:     reconcile.NewHTTPRecordSource(cfg.reconcileEndpoint, nil),
			Interval:   cfg.reconcileInterval,
			Logger:     logger,
		})
		go func() {
			if err := auditor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("Reconciliation auditor stopped: %v", err)
			}
		}()
	}

	scan := scanner.New(scanner.Options{
		Chain:         rpc,
		Store:         ledgerStore,
		Policy:        cfg.policy,
		Archiver:      archiver,
		GenesisHeight: cfg.genesisHeight,
		Confirmations: cfg.confirmations,
		PollInterval:  cfg.pollInterval,
		Notify:        notify,
		Logger:        logger,
	})

	return scan.Run(ctx)
}
