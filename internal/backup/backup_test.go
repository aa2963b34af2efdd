package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/dvloznov/twocents/internal/remote/inmemory"
)

// legacy is what an older browser install stored.
const legacy = `{
  "transactions": [
    {"id": "t2", "date": "2024-01-10", "amount": -50, "category": "Groceries"},
    {"id": "t1", "date": "2024-01-05", "amount": 2000}
  ],
  "goals": [
    {"id": "1700000000000", "name": "Car loan", "current": 500, "target": 0, "category": "debt", "color": "#f00", "isDebt": true, "originalDebt": 500, "linkedBillNames": ["Car"]}
  ],
  "bills": [
    {"id": "b1", "name": "Car", "amount": 100, "dueDay": 5, "lastPaid": "2024-01-05", "linkedGoalId": "1700000000000"},
    {"id": "b2", "name": "Gym", "amount": -30, "dueDay": 40, "linkedGoalId": "gone"}
  ],
  "settings": {
    "currency": " ",
    "uiMode": "minimalist",
    "categories": [{"id": "c1", "name": "Groceries", "limit": 600}, {"id": "c2", "name": "groceries", "limit": 1}],
    "coupleMode": {"enabled": true, "partner1Name": "Ana", "partner2Name": "Ben"}
  }
}`

func TestImport_Legacy(t *testing.T) {
	ctx := context.Background()
	snap, err := Read(strings.NewReader(legacy))
	require.NoError(t, err)

	dst := inmemory.NewDatabase().Backend(remote.LocalSession)
	res, err := Import(ctx, dst, snap, zerolog.New(io.Discard))
	require.NoError(t, err)
	assert.Equal(t, Result{Transactions: 2, Goals: 1, Bills: 2, Settings: true}, res)

	txs, err := dst.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, -50.0, txs[0].Amount)

	goals, err := dst.ListGoals(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.NotEqual(t, "1700000000000", goals[0].ID)
	assert.True(t, goals[0].IsDebt)

	bills, err := dst.ListBills(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, goals[0].ID, bills[0].LinkedGoalID)
	require.NotNil(t, bills[0].LastPaid)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 5}, *bills[0].LastPaid)
	assert.Empty(t, bills[1].LinkedGoalID)
	assert.Equal(t, 30.0, bills[1].Amount)
	assert.Equal(t, 31, bills[1].DueDay)

	s, err := dst.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCurrency, s.Currency)
	assert.Equal(t, domain.UIModeMinimalist, s.UIMode)
	assert.Len(t, s.Categories, 1)
	assert.Equal(t, "Ben", s.CoupleMode.Partner2Name)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := inmemory.NewDatabase().Backend(remote.LocalSession)
	g, err := src.AddGoal(ctx, domain.Goal{Name: "Trip", Target: 100})
	require.NoError(t, err)
	_, err = src.AddBill(ctx, domain.Bill{Name: "Flights", Amount: 50, DueDay: 2, LinkedGoalID: g.ID})
	require.NoError(t, err)
	_, err = src.AddTransaction(ctx, domain.NewTransaction{Date: civil.Date{Year: 2024, Month: time.May, Day: 1}, Amount: 10})
	require.NoError(t, err)

	at := time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)
	snap, err := Export(ctx, src, at)
	require.NoError(t, err)
	assert.Equal(t, Version, snap.Version)
	require.NotNil(t, snap.ExportedAt)
	assert.Equal(t, at, *snap.ExportedAt)

	path := filepath.Join(t.TempDir(), "backup.json")
	require.NoError(t, WriteFile(path, snap))
	back, err := ReadFile(path)
	require.NoError(t, err)

	dst := inmemory.NewDatabase().Backend(remote.Session{UserID: "other"})
	_, err = Import(ctx, dst, back, zerolog.New(io.Discard))
	require.NoError(t, err)

	goals, err := dst.ListGoals(ctx)
	require.NoError(t, err)
	bills, err := dst.ListBills(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	require.Len(t, bills, 1)
	assert.Equal(t, goals[0].ID, bills[0].LinkedGoalID)

	s, err := dst.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Settings.Categories, s.Categories)
}

type failingGoals struct {
	*inmemory.Backend
}

func (f failingGoals) AddGoal(ctx context.Context, g domain.Goal) (domain.Goal, error) {
	return domain.Goal{}, errors.New("quota exceeded")
}

func TestImport_PartialFailure(t *testing.T) {
	snap, err := Read(strings.NewReader(legacy))
	require.NoError(t, err)

	dst := failingGoals{inmemory.NewDatabase().Backend(remote.LocalSession)}
	res, err := Import(context.Background(), dst, snap, zerolog.Nop())
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, Result{Transactions: 2}, res)
}

type memStorage struct {
	objects map[string][]byte
}

func (m *memStorage) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+object] = data
	return nil
}

func (m *memStorage) Download(ctx context.Context, bucket, object string) ([]byte, error) {
	data, ok := m.objects[bucket+"/"+object]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	svc := &memStorage{objects: map[string][]byte{}}
	s := remote.Session{UserID: "u1", HouseholdID: "h1"}
	object := ObjectName(s, time.Date(2025, time.May, 1, 8, 30, 0, 0, time.UTC))
	assert.Equal(t, "twocents/household/h1/20250501T083000Z.json", object)

	snap, err := Read(strings.NewReader(legacy))
	require.NoError(t, err)
	require.NoError(t, Upload(ctx, svc, "bkt", object, snap))
	assert.True(t, bytes.Contains(svc.objects["bkt/"+object], []byte(`"linkedGoalId"`)))

	got, err := Download(ctx, svc, "bkt", object)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	_, err = Download(ctx, svc, "bkt", "missing")
	assert.Error(t, err)
}
