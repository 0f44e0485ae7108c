package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"drc20-indexer/internal/reconcile"
	"drc20-indexer/internal/storage/migrations"
	pgstore "drc20-indexer/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	endpoint := flag.String("endpoint", "", "External record source base URL")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall run timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[reconcile] ", log.LstdFlags|log.Lshortfile)

	if *postgresDSN == "" {
		logger.Fatal("PostgreSQL DSN required")
	}
	if *endpoint == "" {
		logger.Fatal("External record source endpoint required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	auditor := reconcile.New(reconcile.Options{
		Ledger:     pgstore.NewLedgerStore(pool),
		Operations: pgstore.NewOperationStore(pool),
		Records:    pgstore.NewReconciliationStore(pool),
		Source:     reconcile.NewHTTPRecordSource(*endpoint, nil),
		Logger:     logger,
	})

	records, err := auditor.RunOnce(ctx)
	if err != nil {
		logger.Fatalf("Reconciliation failed: %v", err)
	}

	discrepancies := 0
	for _, rec := range records {
		status := "ok"
		if !rec.Verified {
			status = "MISMATCH"
			discrepancies++
		}
		fmt.Printf("%-8s external=%-12d ledger=%-12d %s\n", rec.Tick, rec.ExternalCount, rec.LedgerCount, status)
	}
	fmt.Printf("Checked %d ticks, %d discrepancies\n", len(records), discrepancies)

	if discrepancies > 0 {
		os.Exit(1)
	}
}
