package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/motoshop/workshop-scheduling/internal/api"
	"github.com/motoshop/workshop-scheduling/internal/appointment"
	"github.com/motoshop/workshop-scheduling/internal/config"
	"github.com/motoshop/workshop-scheduling/internal/db"
	"github.com/motoshop/workshop-scheduling/internal/memstore"
	"github.com/motoshop/workshop-scheduling/internal/metrics"
	redisclient "github.com/motoshop/workshop-scheduling/internal/redis"
	"github.com/motoshop/workshop-scheduling/internal/settings"
	"github.com/motoshop/workshop-scheduling/internal/workorder"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s storage=%s timezone=%s",
		cfg.Env, cfg.HTTPPort, cfg.StorageDriver, cfg.Location)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		repo       appointment.Repository
		night      settings.Store
		orders     workorder.Creator
		transports []appointment.Transport
		checks     []api.Check
	)

	switch cfg.StorageDriver {
	case config.DriverMemory:
		store := memstore.New()
		seedDemo(store)
		repo, night, orders = store, store.NightShift(), store.WorkOrders()
		transports = []appointment.Transport{store.Transport()}
		log.Println("using in-memory storage, data is lost on restart")

	default:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatalf("postgres connection error: %v", err)
		}
		defer pgPool.Close()
		log.Println("connected to Postgres")

		migrateCtx, cancelMigrate := context.WithTimeout(rootCtx, 30*time.Second)
		err = db.Migrate(migrateCtx, pgPool)
		cancelMigrate()
		if err != nil {
			log.Fatalf("schema migration error: %v", err)
		}

		repo = appointment.NewPgRepository(pgPool)
		night = settings.NewPgStore(pgPool)
		orders = workorder.NewPgCreator(pgPool)
		transports = []appointment.Transport{appointment.NewTxTransport(pgPool)}
		checks = append(checks, api.Check{Name: "postgres", Critical: true, Ping: pgPool.Ping})

		if cfg.MetricsEnabled {
			metrics.RegisterPool(reg, pgPool)
		}
	}

	// Redis only narrows contention; bookings fall back to the next transport when it is down.
	if cfg.RedisEnabled {
		rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Printf("redis unavailable, booking without distributed lock: %v", err)
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					log.Printf("error closing redis: %v", err)
				}
			}()
			log.Println("connected to Redis")

			locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL, cfg.LockWait)
			transports = append([]appointment.Transport{appointment.NewLockedTransport(locker, transports[0])}, transports...)
			checks = append(checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}})
		}
	}

	var (
		rec            appointment.Recorder
		httpObs        api.HTTPObserver
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		m := metrics.New(reg)
		rec, httpObs = m, m
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	booker := appointment.NewBooker(repo, night, cfg.Location, transports,
		appointment.WithRecorder(rec),
		appointment.WithTimeout(cfg.BookingTimeout),
	)

	names := make([]string, 0, len(transports))
	for _, t := range transports {
		names = append(names, t.Name())
	}
	log.Printf("booking transports=%v lock_ttl=%s lock_wait=%s booking_timeout=%s",
		names, cfg.LockTTL, cfg.LockWait, cfg.BookingTimeout)

	router := api.NewRouter(api.RouterConfig{
		Service:        appointment.NewService(repo, booker, orders),
		Availability:   appointment.NewAvailability(repo, night, booker, rec),
		NightShift:     night,
		Location:       cfg.Location,
		Checks:         checks,
		Metrics:        httpObs,
		MetricsHandler: metricsHandler,
		RequestTimeout: cfg.BookingTimeout + 5*time.Second,
		Env:            cfg.Env,
		Version:        cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("http server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("api-server stopped")
}

// seedDemo fills the memory store so the API is usable right after start.
func seedDemo(store *memstore.Store) {
	for i := 0; i < 20; i++ {
		c := store.AddClient(gofakeit.Name())
		if i < 3 {
			log.Printf("demo client id=%s name=%q", c.ID, c.Name)
		}
	}
	for i := 0; i < 4; i++ {
		m := store.AddMechanic(gofakeit.FirstName(), true)
		log.Printf("demo mechanic id=%s name=%q", m.ID, m.Name)
	}

	catalogue := []struct {
		name     string
		duration int
	}{
		{"Oil change", 60},
		{"Chain and sprocket kit", 90},
		{"Brake pads", 60},
		{"Full service", 120},
		{"Tyre swap", 30},
	}
	for _, c := range catalogue {
		svc := store.AddService(c.name, c.duration, int64(gofakeit.Number(300, 4000))*100)
		log.Printf("demo service id=%s name=%q duration=%d", svc.ID, svc.Name, c.duration)
	}
	log.Printf("seeded demo data clients=20 mechanics=4 services=%d", len(catalogue))
}
