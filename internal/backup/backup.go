// Package backup exports a partition's records to a JSON snapshot and imports
// them back. The snapshot uses the key layout of the browser app's storage, so
// data saved by older installs can be imported unchanged.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/gcs"
	"github.com/dvloznov/twocents/internal/remote"
)

// Version is written to every snapshot.
const Version = 1

// Snapshot is a full copy of one partition.
type Snapshot struct {
	Version      int                  `json:"version,omitempty"`
	ExportedAt   *time.Time           `json:"exportedAt,omitempty"`
	Transactions []domain.Transaction `json:"transactions,omitempty"`
	Goals        []domain.Goal        `json:"goals,omitempty"`
	Bills        []domain.Bill        `json:"bills,omitempty"`
	Settings     *domain.Settings     `json:"settings,omitempty"`
}

// Result counts what Import wrote.
type Result struct {
	Transactions int
	Goals        int
	Bills        int
	Settings     bool
}

// Export reads every record visible to src.
func Export(ctx context.Context, src remote.Backend, now time.Time) (Snapshot, error) {
	txs, err := src.ListTransactions(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("Export: transactions: %w", err)
	}
	goals, err := src.ListGoals(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("Export: goals: %w", err)
	}
	bills, err := src.ListBills(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("Export: bills: %w", err)
	}
	settings, err := src.GetSettings(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("Export: settings: %w", err)
	}

	at := now.UTC()
	return Snapshot{
		Version:      Version,
		ExportedAt:   &at,
		Transactions: txs,
		Goals:        goals,
		Bills:        bills,
		Settings:     &settings,
	}, nil
}

// Import adds every record of snap to dst. Backends assign new ids, so bill
// links are rewritten to the new goal ids; a link to a goal missing from the
// snapshot is dropped. Settings, when present, replace the stored ones.
// On error the counts of records already written are returned.
func Import(ctx context.Context, dst remote.Backend, snap Snapshot, log zerolog.Logger) (Result, error) {
	var res Result

	// Snapshots list transactions newest first; adding oldest first keeps
	// same-day entries in their original order.
	txs := slices.Clone(snap.Transactions)
	slices.Reverse(txs)
	for _, t := range txs {
		_, err := dst.AddTransaction(ctx, domain.NewTransaction{
			Date:     t.Date,
			Amount:   t.Amount,
			Category: t.Category,
			Note:     t.Note,
			Who:      t.Who,
		})
		if err != nil {
			return res, fmt.Errorf("Import: transaction %s: %w", t.ID, err)
		}
		res.Transactions++
	}

	// Goals and bills are listed newest first too.
	goals := slices.Clone(snap.Goals)
	slices.Reverse(goals)
	goalIDs := make(map[string]string, len(goals))
	for _, g := range goals {
		added, err := dst.AddGoal(ctx, g)
		if err != nil {
			return res, fmt.Errorf("Import: goal %q: %w", g.Name, err)
		}
		goalIDs[g.ID] = added.ID
		res.Goals++
	}

	bills := slices.Clone(snap.Bills)
	slices.Reverse(bills)
	for _, b := range bills {
		if b.LinkedGoalID != "" {
			id, ok := goalIDs[b.LinkedGoalID]
			if !ok {
				log.Warn().Str("bill", b.Name).Str("goal_id", b.LinkedGoalID).Msg("Dropping link to unknown goal")
			}
			b.LinkedGoalID = id
		}
		if _, err := dst.AddBill(ctx, b.Normalize()); err != nil {
			return res, fmt.Errorf("Import: bill %q: %w", b.Name, err)
		}
		res.Bills++
	}

	if snap.Settings != nil {
		if err := dst.UpdateSettings(ctx, settingsPatch(*snap.Settings)); err != nil {
			return res, fmt.Errorf("Import: settings: %w", err)
		}
		res.Settings = true
	}

	return res, nil
}

// settingsPatch replaces every settings field, cleaning up values older
// installs could store.
func settingsPatch(s domain.Settings) domain.SettingsPatch {
	currency := strings.TrimSpace(s.Currency)
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	mode := s.UIMode
	if !mode.Valid() {
		mode = domain.UIModeProfessional
	}
	return domain.SettingsPatch{
		Currency:   domain.Set(currency),
		UIMode:     domain.Set(mode),
		Categories: domain.Set(domain.DedupeCategories(s.Categories)),
		CoupleMode: domain.Set(s.CoupleMode),
	}
}

// Read decodes a snapshot.
func Read(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("Read: %w", err)
	}
	return snap, nil
}

// Write encodes snap as indented JSON.
func Write(w io.Writer, snap Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	return nil
}

// ReadFile reads a snapshot from path.
func ReadFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("ReadFile: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// WriteFile writes a snapshot to path.
func WriteFile(path string, snap Snapshot) error {
	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("WriteFile: %w", err)
	}
	return nil
}

// ObjectName returns the bucket object for a backup of s taken at t.
func ObjectName(s remote.Session, t time.Time) string {
	key := strings.ReplaceAll(s.PartitionKey(), ":", "/")
	return "twocents/" + key + "/" + t.UTC().Format("20060102T150405Z") + ".json"
}

// Upload stores snap in bucket under object.
func Upload(ctx context.Context, svc gcs.StorageService, bucket, object string, snap Snapshot) error {
	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		return err
	}
	if err := svc.Upload(ctx, bucket, object, "application/json", &buf); err != nil {
		return fmt.Errorf("Upload: %w", err)
	}
	return nil
}

// Download fetches a snapshot from bucket.
func Download(ctx context.Context, svc gcs.StorageService, bucket, object string) (Snapshot, error) {
	data, err := svc.Download(ctx, bucket, object)
	if err != nil {
		return Snapshot{}, fmt.Errorf("Download: %w", err)
	}
	return Read(bytes.NewReader(data))
}
