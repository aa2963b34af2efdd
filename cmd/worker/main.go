package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/twocents/internal/app"
	"github.com/dvloznov/twocents/internal/backup"
	"github.com/dvloznov/twocents/internal/config"
	"github.com/dvloznov/twocents/internal/gcs"
	"github.com/dvloznov/twocents/internal/gcsuploader"
	"github.com/dvloznov/twocents/internal/jobs"
	"github.com/dvloznov/twocents/internal/jobs/inmemory"
	"github.com/dvloznov/twocents/internal/logger"
	"github.com/dvloznov/twocents/internal/remote"
)

var configPath = flag.String("config", "", "Path to a YAML config file")

func main() {
	flag.Parse()

	boot := logger.New()
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("Failed to load config")
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid log level")
	}
	log := logger.NewWithLevel(level)

	if cfg.Backup.Bucket == "" {
		log.Fatal().Msg("backup.bucket is required for the worker")
	}
	interval := cfg.Backup.Interval
	if interval == 0 {
		interval = 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	b, err := app.OpenBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend.Kind).Msg("Failed to open backend")
	}
	defer b.Close()

	jobStore := inmemory.NewStore()
	retries := cfg.Writes.MaxRetries
	if retries == 0 {
		retries = -1
	}
	jobQueue := inmemory.NewQueue(inmemory.QueueConfig{BufferSize: 4, MaxRetries: retries, Backoff: cfg.Writes.Backoff}, jobStore)

	if err := jobQueue.Start(ctx, jobs.RunWrite); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	svc := gcsuploader.NewGCSStorageService()
	s := cfg.RemoteSession()
	schedule := func() {
		job := backupJob(b, svc, cfg.Backup.Bucket, s, time.Now, log)
		if err := jobQueue.Publish(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to queue backup")
		}
	}

	log.Info().
		Str("backend", cfg.Backend.Kind).
		Str("bucket", cfg.Backup.Bucket).
		Dur("interval", interval).
		Msg("Worker service started")

	schedule()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-ticker.C:
			schedule()
		case <-quit:
			break loop
		}
	}

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop waits for a running backup to finish.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}

// backupJob returns a job that exports the session's data and uploads it to
// bucket under a name stamped with the time the job runs.
func backupJob(src remote.Backend, svc gcs.StorageService, bucket string, s remote.Session, now func() time.Time, log zerolog.Logger) *jobs.WriteJob {
	partition := s.PartitionKey()
	return jobs.NewWriteJob(jobs.JobTypeBackup, partition, func(ctx context.Context) error {
		at := now()
		snap, err := backup.Export(ctx, src, at)
		if err != nil {
			return fmt.Errorf("backupJob: %w", err)
		}
		object := backup.ObjectName(s, at)
		if err := backup.Upload(ctx, svc, bucket, object, snap); err != nil {
			return fmt.Errorf("backupJob: %w", err)
		}
		log.Info().
			Str("partition", partition).
			Str("object", fmt.Sprintf("gs://%s/%s", bucket, object)).
			Int("transactions", len(snap.Transactions)).
			Int("goals", len(snap.Goals)).
			Int("bills", len(snap.Bills)).
			Msg("Backup uploaded")
		return nil
	})
}
