package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motoshop/workshop-scheduling/internal/db"
)

type catalogueEntry struct {
	name     string
	duration *int // nil means the shop never set one
}

func minutes(n int) *int { return &n }

var catalogue = []catalogueEntry{
	{"Oil and filter change", minutes(60)},
	{"Chain and sprocket kit", minutes(90)},
	{"Front brake pads", minutes(45)},
	{"Valve clearance check", minutes(180)},
	{"Full annual service", minutes(240)},
	{"Tyre swap", minutes(30)},
	{"Electrical diagnosis", nil},
	{"Carburettor sync", minutes(120)},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if err := seedMechanics(context.Background(), pool, getInt("SEED_MECHANICS", 6)); err != nil {
		log.Fatalf("seed mechanics: %v", err)
	}
	if err := seedServices(context.Background(), pool); err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedClients(context.Background(), pool, getInt("SEED_CLIENTS", 2000)); err != nil {
		log.Fatalf("seed clients: %v", err)
	}

	log.Println("seed complete")
}

func seedMechanics(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d mechanics", count)

	return db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			sql, args, err := db.SQL.Insert("mechanics").
				Columns("id", "name", "active").
				Values(uuid.New(), gofakeit.Name(), gofakeit.Number(0, 9) > 0).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, sql, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) error {
	log.Printf("seeding %d services", len(catalogue))

	return db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for _, c := range catalogue {
			price := int64(gofakeit.Number(250, 6000)) * 100
			sql, args, err := db.SQL.Insert("services").
				Columns("id", "name", "duration_minutes", "price_cents").
				Values(uuid.New(), c.name, c.duration, price).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, sql, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d clients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
			insert := db.SQL.Insert("clients").Columns("id", "name", "phone")
			for i := offset; i < end; i++ {
				insert = insert.Values(uuid.New(), gofakeit.Name(), gofakeit.Phone())
			}
			sql, args, err := insert.ToSql()
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, sql, args...)
			return err
		})
		if err != nil {
			return err
		}

		log.Printf("clients seeded: %d/%d", end, count)
	}

	log.Println("clients seeded")
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
