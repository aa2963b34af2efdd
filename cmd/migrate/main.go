package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/twocents/internal/app"
	"github.com/dvloznov/twocents/internal/backup"
	"github.com/dvloznov/twocents/internal/config"
	"github.com/dvloznov/twocents/internal/logger"
)

var (
	configPath   = flag.String("config", "", "Path to a YAML config file")
	localStorage = flag.String("localstorage", "", "Browser storage dump (JSON.stringify(localStorage)) to import")
	snapshotPath = flag.String("snapshot", "", "Snapshot file written by 'cli export' to import")
	dryRun       = flag.Bool("dry-run", false, "Only report what would be imported")
)

func main() {
	flag.Parse()
	log := logger.New()

	if *localStorage != "" && *snapshotPath != "" {
		log.Fatal().Msg("Pass at most one of -localstorage and -snapshot")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	var (
		snap backup.Snapshot
		src  string
	)
	switch {
	case *localStorage != "":
		src = *localStorage
		snap, err = readSnapshot(src, true)
	case *snapshotPath != "":
		src = *snapshotPath
		snap, err = readSnapshot(src, false)
	}
	if err != nil {
		log.Fatal().Err(err).Str("file", src).Msg("Failed to read import file")
	}
	if src != "" {
		log.Info().Str("file", src).Msg(describe(snap))
	}
	if *dryRun {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	// Opening a database backend creates any missing tables.
	b, err := app.OpenBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend.Kind).Msg("Failed to open backend")
	}
	defer b.Close()
	log.Info().Str("backend", cfg.Backend.Kind).Msg("Schema is up to date")

	if src == "" {
		return
	}

	res, err := backup.Import(ctx, b, snap, log)
	log.Info().
		Int("transactions", res.Transactions).
		Int("goals", res.Goals).
		Int("bills", res.Bills).
		Bool("settings", res.Settings).
		Str("partition", cfg.RemoteSession().PartitionKey()).
		Msg("Imported")
	if err != nil {
		log.Fatal().Err(err).Msg("Import stopped")
	}
}

// readSnapshot reads an import file, either a browser storage dump or a
// snapshot.
func readSnapshot(path string, fromBrowser bool) (backup.Snapshot, error) {
	if !fromBrowser {
		return backup.ReadFile(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return backup.Snapshot{}, err
	}
	defer f.Close()
	return backup.ReadLocalStorage(f)
}

func describe(snap backup.Snapshot) string {
	msg := fmt.Sprintf("Found %d transactions, %d goals and %d bills", len(snap.Transactions), len(snap.Goals), len(snap.Bills))
	if snap.Settings != nil {
		msg += " with settings"
	}
	return msg
}
