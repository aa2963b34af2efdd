package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/twocents/internal/app"
	"github.com/dvloznov/twocents/internal/backup"
	"github.com/dvloznov/twocents/internal/gcsuploader"
	"github.com/dvloznov/twocents/internal/report"
)

// openBackend opens the configured backend without the stores; snapshots
// talk to it directly.
func (c *command) openBackend(ctx context.Context) *app.Backend {
	b, err := app.OpenBackend(ctx, c.cfg, c.log)
	if err != nil {
		c.log.Fatal().Err(err).Str("backend", c.cfg.Backend.Kind).Msg("Failed to open backend")
	}
	return b
}

func printImported(res backup.Result) {
	fmt.Printf("Imported %d transactions, %d goals and %d bills", res.Transactions, res.Goals, res.Bills)
	if res.Settings {
		fmt.Print(", and settings")
	}
	fmt.Println(".")
}

func runImport(log zerolog.Logger) {
	c := newCommand("import", log)
	c.parse()
	path := c.arg("FILE")

	snap, err := backup.ReadFile(path)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Failed to read snapshot")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	b := c.openBackend(ctx)
	defer b.Close()

	res, err := backup.Import(ctx, b, snap, c.log)
	printImported(res)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Import stopped")
	}
}

func runExport(log zerolog.Logger) {
	c := newCommand("export", log)
	c.parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	b := c.openBackend(ctx)
	defer b.Close()

	snap, err := backup.Export(ctx, b, time.Now())
	if err != nil {
		c.log.Fatal().Err(err).Msg("Export failed")
	}

	if c.fs.NArg() == 0 || c.fs.Arg(0) == "-" {
		if err := backup.Write(os.Stdout, snap); err != nil {
			c.log.Fatal().Err(err).Msg("Export failed")
		}
		return
	}
	if err := backup.WriteFile(c.fs.Arg(0), snap); err != nil {
		c.log.Fatal().Err(err).Msg("Export failed")
	}
	fmt.Printf("Exported %d transactions to %s\n", len(snap.Transactions), c.fs.Arg(0))
}

func runBackup(log zerolog.Logger) {
	c := newCommand("backup", log)
	bucket := c.fs.String("bucket", "", "GCS bucket (overrides backup.bucket)")
	c.parse()
	if *bucket == "" {
		*bucket = c.cfg.Backup.Bucket
	}
	if *bucket == "" {
		c.log.Fatal().Msg("No bucket: set backup.bucket or pass -bucket")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	b := c.openBackend(ctx)
	defer b.Close()

	now := time.Now()
	snap, err := backup.Export(ctx, b, now)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Export failed")
	}

	object := backup.ObjectName(c.cfg.RemoteSession(), now)
	if err := backup.Upload(ctx, gcsuploader.NewGCSStorageService(), *bucket, object, snap); err != nil {
		c.log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Backed up to gs://%s/%s\n", *bucket, object)
}

func runRestore(log zerolog.Logger) {
	c := newCommand("restore", log)
	c.parse()
	uri := c.arg("gs://BUCKET/OBJECT")

	bucket, object, err := gcsuploader.ParseURI(uri)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Invalid backup location")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	snap, err := backup.Download(ctx, gcsuploader.NewGCSStorageService(), bucket, object)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Download failed")
	}

	b := c.openBackend(ctx)
	defer b.Close()

	res, err := backup.Import(ctx, b, snap, c.log)
	printImported(res)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Restore stopped")
	}
}

func runXLSX(log zerolog.Logger) {
	c := newCommand("xlsx", log)
	month := c.fs.String("month", "", "Month as YYYY-MM (defaults to this month)")
	out := c.fs.String("out", "", "Output file or gs://BUCKET/OBJECT (defaults to twocents-YYYY-MM.xlsx)")
	c.parse()

	m := parseMonth(*month, c.log)
	if *out == "" {
		*out = "twocents-" + m.String() + ".xlsx"
	}

	var bucket, object string
	path := *out
	if strings.HasPrefix(*out, "gs://") {
		var err error
		if bucket, object, err = gcsuploader.ParseURI(*out); err != nil {
			c.log.Fatal().Err(err).Msg("Invalid output location")
		}
		tmp, err := os.CreateTemp("", "twocents-*.xlsx")
		if err != nil {
			c.log.Fatal().Err(err).Msg("Failed to create temp file")
		}
		tmp.Close()
		path = tmp.Name()
		defer os.Remove(path)
	}

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	f, err := os.Create(path)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Failed to create output file")
	}
	if err := report.WriteXLSX(f, a.Ledger.Get(), *a.Settings.Get(), m); err != nil {
		f.Close()
		c.log.Fatal().Err(err).Msg("Failed to write workbook")
	}
	if err := f.Close(); err != nil {
		c.log.Fatal().Err(err).Msg("Failed to write workbook")
	}

	if bucket != "" {
		if err := gcsuploader.UploadFile(ctx, bucket, object, path); err != nil {
			c.log.Fatal().Err(err).Msg("Upload failed")
		}
	}
	fmt.Printf("Wrote %s\n", *out)
}
