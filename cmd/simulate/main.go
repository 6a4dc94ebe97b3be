package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motoshop/workshop-scheduling/internal/appointment"
	"github.com/motoshop/workshop-scheduling/internal/config"
	"github.com/motoshop/workshop-scheduling/internal/db"
	"github.com/motoshop/workshop-scheduling/internal/memstore"
	redisclient "github.com/motoshop/workshop-scheduling/internal/redis"
	"github.com/motoshop/workshop-scheduling/internal/settings"
	"github.com/motoshop/workshop-scheduling/internal/slots"
	"github.com/motoshop/workshop-scheduling/internal/workorder"
)

type SimConfig struct {
	APIBaseURL      string // when set, load goes through the HTTP API instead of in process
	Duration        time.Duration
	Workers         int
	Days            int
	DurationMinutes int
	BookingRatio    float64
	ConfirmRatio    float64
	CancelRatio     float64
	MechanicRatio   float64 // share of bookings that ask for a specific mechanic
	ClientLimit     int
	Base            config.Config
}

type DataPool struct {
	Clients   []uuid.UUID
	Mechanics []uuid.UUID
	Days      []time.Time
	Keys      []string

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, res outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch res {
	case outcomeSuccess:
		atomic.AddInt64(&om.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type Metrics struct {
	Booking OperationMetrics
	Confirm OperationMetrics
	Cancel  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	target  target
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d days=%d slot_minutes=%d booking=%.2f confirm=%.2f cancel=%.2f",
		cfg.Duration, cfg.Workers, cfg.Days, cfg.DurationMinutes, cfg.BookingRatio, cfg.ConfirmRatio, cfg.CancelRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tgt, dataPool, cleanup, err := setup(ctx, cfg)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	defer cleanup()

	log.Printf("loaded: %d clients, %d mechanics, %d days x %d slots via %s",
		len(dataPool.Clients), len(dataPool.Mechanics), len(dataPool.Days), len(dataPool.Keys), tgt.name())

	sim := &Simulator{config: cfg, pool: dataPool, target: tgt}
	sim.Run()
	sim.PrintReport()

	violations := sim.Audit(context.Background())
	if len(violations) > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:      strings.TrimRight(os.Getenv("SIM_API_BASE_URL"), "/"),
		Duration:        getDuration("SIM_DURATION", 20*time.Second),
		Workers:         getInt("SIM_WORKERS", 16),
		Days:            getInt("SIM_DAYS", 2),
		DurationMinutes: slots.ClampDuration(getInt("SIM_SLOT_MINUTES", 60)),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.7),
		ConfirmRatio:    getFloat("SIM_CONFIRM_RATIO", 0.2),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		MechanicRatio:   getFloat("SIM_MECHANIC_RATIO", 0.5),
		ClientLimit:     getInt("SIM_CLIENT_LIMIT", 500),
		Base:            baseCfg,
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return errors.New("SIM_DAYS must be > 0")
	}
	if cfg.APIBaseURL != "" && cfg.Base.StorageDriver != config.DriverPostgres {
		return errors.New("SIM_API_BASE_URL needs STORAGE_DRIVER=postgres to load clients and mechanics")
	}
	return nil
}

// setup picks where load goes and where the client and mechanic ids come from.
func setup(ctx context.Context, cfg SimConfig) (target, *DataPool, func(), error) {
	var dataPool *DataPool
	cleanup := func() {}

	if cfg.Base.StorageDriver == config.DriverMemory {
		store := memstore.New()
		dataPool = seedMemory(store, cfg)
		booker := appointment.NewBooker(store, store.NightShift(), cfg.Base.Location,
			[]appointment.Transport{store.Transport()}, appointment.WithTimeout(cfg.Base.BookingTimeout))
		svc := appointment.NewService(store, booker, store.WorkOrders())
		addCalendar(dataPool, cfg)
		return &serviceTarget{svc: svc}, dataPool, cleanup, nil
	}

	pgPool, err := db.ConnectPostgres(ctx, cfg.Base.PostgresDSN)
	if err != nil {
		return nil, nil, cleanup, fmt.Errorf("connect postgres: %w", err)
	}
	cleanup = pgPool.Close

	if err := db.Migrate(ctx, pgPool); err != nil {
		return nil, nil, cleanup, fmt.Errorf("migrate: %w", err)
	}

	dataPool, err = loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		return nil, nil, cleanup, fmt.Errorf("load data pool: %w", err)
	}
	addCalendar(dataPool, cfg)

	if cfg.APIBaseURL != "" {
		return newHTTPTarget(cfg.APIBaseURL), dataPool, cleanup, nil
	}

	repo := appointment.NewPgRepository(pgPool)
	night := settings.NewPgStore(pgPool)
	transports := []appointment.Transport{appointment.NewTxTransport(pgPool)}

	if cfg.Base.RedisEnabled {
		rdb, err := redisclient.NewRedisClient(cfg.Base.RedisAddr, cfg.Base.RedisUsername, cfg.Base.RedisPassword)
		if err != nil {
			log.Printf("redis unavailable, simulating without distributed lock: %v", err)
		} else {
			closePg := cleanup
			cleanup = func() {
				_ = rdb.Close()
				closePg()
			}
			locker := redisclient.NewRedisDayLocker(rdb, cfg.Base.LockTTL, cfg.Base.LockWait)
			transports = append([]appointment.Transport{appointment.NewLockedTransport(locker, transports[0])}, transports...)
		}
	}

	booker := appointment.NewBooker(repo, night, cfg.Base.Location, transports,
		appointment.WithTimeout(cfg.Base.BookingTimeout))
	svc := appointment.NewService(repo, booker, workorder.NewPgCreator(pgPool))
	return &serviceTarget{svc: svc}, dataPool, cleanup, nil
}

func seedMemory(store *memstore.Store, cfg SimConfig) *DataPool {
	dp := &DataPool{}
	for i := 0; i < cfg.ClientLimit; i++ {
		dp.Clients = append(dp.Clients, store.AddClient(gofakeit.Name()).ID)
	}
	for i := 0; i < 4; i++ {
		dp.Mechanics = append(dp.Mechanics, store.AddMechanic(gofakeit.FirstName(), true).ID)
	}
	return dp
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	var err error
	dp.Clients, err = loadIDs(ctx, pool, db.SQL.Select("id").From("clients").Limit(uint64(cfg.ClientLimit)))
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	dp.Mechanics, err = loadIDs(ctx, pool, db.SQL.Select("id").From("mechanics").Where("active"))
	if err != nil {
		return nil, fmt.Errorf("load mechanics: %w", err)
	}

	if len(dp.Clients) == 0 {
		return nil, errors.New("no clients loaded, run cmd/seed first")
	}
	return dp, nil
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, q sqlizer) ([]uuid.UUID, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// addCalendar books into the next few days only, so workers collide on the same slots.
func addCalendar(dp *DataPool, cfg SimConfig) {
	today := slots.StartOfDay(time.Now().In(cfg.Base.Location))
	for i := 1; i <= cfg.Days; i++ {
		dp.Days = append(dp.Days, today.AddDate(0, 0, i))
	}
	for _, s := range slots.Generate(dp.Days[0], cfg.DurationMinutes, false) {
		dp.Keys = append(dp.Keys, s.Key)
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			default:
				s.doCancel(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	req := bookRequest{
		ClientID:        s.pool.Clients[rng.Intn(len(s.pool.Clients))],
		Date:            s.pool.Days[rng.Intn(len(s.pool.Days))],
		SlotKey:         s.pool.Keys[rng.Intn(len(s.pool.Keys))],
		DurationMinutes: s.config.DurationMinutes,
	}
	if len(s.pool.Mechanics) > 0 && rng.Float64() < s.config.MechanicRatio {
		m := s.pool.Mechanics[rng.Intn(len(s.pool.Mechanics))]
		req.MechanicID = &m
	}

	start := time.Now()
	id, res := s.target.book(ctx, req)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Booking.Record(time.Since(start), res)

	if res == outcomeSuccess && id != uuid.Nil {
		s.pool.AddAppointment(id)
	}
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	res := s.target.confirm(ctx, id)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Confirm.Record(time.Since(start), res)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	res := s.target.cancel(ctx, id)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(time.Since(start), res)
}

// Audit re-reads every simulated day and checks that no slot holds more than
// its capacity and no mechanic has two live appointments that overlap.
func (s *Simulator) Audit(ctx context.Context) []string {
	var violations []string

	for _, day := range s.pool.Days {
		occupants, err := s.target.listDay(ctx, day)
		if err != nil {
			violations = append(violations, fmt.Sprintf("%s: read failed: %v", slots.DayKey(day), err))
			continue
		}

		live := 0
		for _, o := range occupants {
			if !o.Cancelled {
				live++
			}
		}

		for _, slot := range slots.Generate(day, s.config.DurationMinutes, true) {
			occ := slots.Measure(slot, occupants, uuid.Nil)
			if occ.Count > occ.Capacity || occ.Peak > occ.Capacity {
				violations = append(violations, fmt.Sprintf("%s %s: %d bookings, %d overlapping, capacity %d",
					slots.DayKey(day), slot.Key, occ.Count, occ.Peak, occ.Capacity))
			}
		}

		violations = append(violations, mechanicOverlaps(day, occupants)...)
		fmt.Printf("Audit %s: %d live appointments\n", slots.DayKey(day), live)
	}

	if len(violations) == 0 {
		fmt.Println("Audit: OK, no slot over capacity and no mechanic double-booked")
		return nil
	}

	fmt.Printf("Audit: %d VIOLATIONS\n", len(violations))
	for _, v := range violations {
		fmt.Printf("  %s\n", v)
	}
	return violations
}

func mechanicOverlaps(day time.Time, occupants []slots.Occupant) []string {
	byMechanic := make(map[uuid.UUID][]slots.Occupant)
	for _, o := range occupants {
		if o.Cancelled || o.MechanicID == nil {
			continue
		}
		byMechanic[*o.MechanicID] = append(byMechanic[*o.MechanicID], o)
	}

	var out []string
	for mechanic, list := range byMechanic {
		sort.Slice(list, func(i, j int) bool { return list[i].Start.Before(list[j].Start) })
		for i := 1; i < len(list); i++ {
			if list[i].Start.Before(list[i-1].End()) {
				out = append(out, fmt.Sprintf("%s mechanic %s: %s and %s overlap",
					slots.DayKey(day), mechanic, list[i-1].ID, list[i].ID))
			}
		}
	}
	return out
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Target: %s\n", s.target.name())
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
