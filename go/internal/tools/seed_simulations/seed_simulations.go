package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/classerp/go/internal/dbconfig"
)

// Simulation mirrors the JSON snapshot
type Simulation struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings"`
}

func main() {
	var path string
	flag.StringVar(&path, "file", "go/internal/assets/simulations.json", "JSON snapshot to seed from")
	flag.Parse()

	// 1) Load the JSON snapshot
	simulations, err := loadSimulations(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count
	var (
		total    = len(simulations)
		inserted int
		skipped  int
		errs     int
	)

	for _, s := range simulations {
		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO simulations (id, name, settings)
            VALUES ($1, $2, $3)
            ON CONFLICT (id) DO NOTHING
        `, s.ID, s.Name, settingsArg(s.Settings))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting simulation %d: %v\n", s.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Keep BIGSERIAL ahead of the explicit ids
	if _, err := pool.Exec(ctx, `
        SELECT setval(pg_get_serial_sequence('simulations', 'id'), COALESCE(MAX(id), 1))
        FROM simulations
    `); err != nil {
		fmt.Fprintf(os.Stderr, "error resetting id sequence: %v\n", err)
		errs++
	}

	// 5) Print summary
	fmt.Printf(
		"Simulations seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}

func loadSimulations(path string) ([]Simulation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read JSON: %w", err)
	}
	var simulations []Simulation
	if err := json.Unmarshal(data, &simulations); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	for _, s := range simulations {
		if s.ID <= 0 || s.Name == "" {
			return nil, fmt.Errorf("simulation %d: id and name are required", s.ID)
		}
	}
	return simulations, nil
}

// settingsArg maps an absent or null settings object to SQL NULL.
func settingsArg(settings json.RawMessage) any {
	if len(settings) == 0 || string(settings) == "null" {
		return nil
	}
	return string(settings)
}
