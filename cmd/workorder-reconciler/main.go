package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/motoshop/workshop-scheduling/internal/appointment"
	"github.com/motoshop/workshop-scheduling/internal/config"
	"github.com/motoshop/workshop-scheduling/internal/db"
	"github.com/motoshop/workshop-scheduling/internal/settings"
	"github.com/motoshop/workshop-scheduling/internal/workorder"
)

const batchSize = 100

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("workorder-reconciler starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.StorageDriver != config.DriverPostgres {
		log.Fatalf("workorder-reconciler needs STORAGE_DRIVER=postgres, got %q", cfg.StorageDriver)
	}
	if cfg.ReconcileEvery <= 0 {
		log.Fatalf("RECONCILE_INTERVAL must be positive, got %s", cfg.ReconcileEvery)
	}

	log.Printf("running work order reconciler in env=%s interval=%s", cfg.Env, cfg.ReconcileEvery)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	repo := appointment.NewPgRepository(pgPool)
	night := settings.NewPgStore(pgPool)
	booker := appointment.NewBooker(repo, night, cfg.Location,
		[]appointment.Transport{appointment.NewTxTransport(pgPool)})
	svc := appointment.NewService(repo, booker, workorder.NewPgCreator(pgPool))

	// Run once at startup
	runOnce(rootCtx, svc)

	ticker := time.NewTicker(cfg.ReconcileEvery)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping work order reconciler")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	created, err := svc.ReconcileWorkOrders(runCtx, batchSize)
	if err != nil {
		log.Printf("reconcile run error: %v", err)
		return
	}
	log.Printf("reconcile run complete created=%d took=%s", created, time.Since(start))
}
