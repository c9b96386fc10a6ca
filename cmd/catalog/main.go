package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"prichal/internal/config"
	"prichal/internal/database"
	"prichal/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run imports the vessel catalog (YAML or TOML) into the database without starting the API.
func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		catalogPath = flag.String("catalog", "configs/resources.yaml", "path to resources.yaml or resources.toml")
		dbPath      = flag.String("db", "./data/prichal.db", "path to sqlite db")
		dryRun      = flag.Bool("dry-run", false, "validate the catalog and print the plan without writing")
	)
	flag.Parse()

	catalog, err := config.LoadCatalog(*catalogPath)
	if err != nil {
		return err
	}
	if len(catalog) == 0 {
		return fmt.Errorf("no resources in %s", *catalogPath)
	}

	db, err := database.NewDB(*dbPath, 5000, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	existing, err := db.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, r := range existing {
		known[r.ID] = true
	}

	created, updated := 0, 0
	for _, r := range catalog {
		if known[r.ID] {
			updated++
		} else {
			created++
		}
	}

	if *dryRun {
		fmt.Printf("dry run: would create=%d update=%d\n", created, updated)
		return nil
	}

	if err := service.NewResourceService(db, &logger).Sync(ctx, catalog); err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}

	fmt.Printf("done: created=%d updated=%d\n", created, updated)
	return nil
}
