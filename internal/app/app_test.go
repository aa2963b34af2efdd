package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/twocents/internal/api/handlers"
	"github.com/dvloznov/twocents/internal/api/middleware"
	"github.com/dvloznov/twocents/internal/config"
	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/jobs"
	"github.com/dvloznov/twocents/internal/notify"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/dvloznov/twocents/internal/remote/inmemory"
)

func testConfig() *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{Kind: config.BackendMemory},
		Session: config.SessionConfig{UserID: "u1"},
		Sync:    config.SyncConfig{PollInterval: time.Hour},
		Writes:  config.WritesConfig{MaxRetries: 1, Backoff: time.Millisecond},
	}
}

func newTestApp(t *testing.T) (*App, *inmemory.Backend) {
	t.Helper()
	cfg := testConfig()
	remoteBackend := inmemory.NewDatabase().Backend(cfg.RemoteSession())
	a := New(cfg, &Backend{Backend: remoteBackend}, zerolog.New(io.Discard))
	a.now = func() time.Time { return time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC) }
	a.Start(context.Background())
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.Init(context.Background()))
	return a, remoteBackend
}

var may1 = civil.Date{Year: 2025, Month: time.May, Day: 1}

func TestAddTransaction_ContributesToLinkedGoal(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)

	goal, err := a.Goals.Add(ctx, domain.Goal{Name: "Trip", Current: 90, Target: 100})
	require.NoError(t, err)

	txn, c, err := a.AddTransaction(ctx, domain.NewTransaction{Date: may1, Amount: -25, Category: "Fun"}, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, -25.0, txn.Amount)
	require.NotNil(t, c)
	assert.Equal(t, 115.0, c.Goal.Current)
	assert.True(t, c.JustCompleted)
	require.NotNil(t, c.Goal.CompletedAt)

	_, c, err = a.AddTransaction(ctx, domain.NewTransaction{Date: may1, Amount: 10}, "")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Len(t, a.Ledger.Get(), 2)
}

func TestAddTransaction_UnknownGoal(t *testing.T) {
	a, _ := newTestApp(t)
	_, _, err := a.AddTransaction(context.Background(), domain.NewTransaction{Date: may1, Amount: 5}, "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)
	// the transaction itself is kept
	assert.Len(t, a.Ledger.Get(), 1)
}

func TestPayBill(t *testing.T) {
	ctx := context.Background()
	a, remoteBackend := newTestApp(t)

	debt, err := a.Goals.Add(ctx, domain.Goal{Name: "Car loan", Current: 300, IsDebt: true, OriginalDebt: domain.Ptr(300.0), Category: domain.GoalDebt})
	require.NoError(t, err)
	bill, err := a.Bills.Add(ctx, domain.Bill{Name: "Car", Amount: 100, DueDay: 1, LinkedGoalID: debt.ID})
	require.NoError(t, err)

	p, err := a.PayBill(ctx, bill.ID, may1)
	require.NoError(t, err)
	assert.Equal(t, -100.0, p.Transaction.Amount)
	assert.Equal(t, "Car - Monthly payment", p.Transaction.Note)
	assert.Equal(t, "Groceries", p.Transaction.Category)
	require.NotNil(t, p.Bill.LastPaid)
	assert.Equal(t, may1, *p.Bill.LastPaid)
	require.NotNil(t, p.Contribution)
	assert.Equal(t, 200.0, p.Contribution.Goal.Current)

	stored, err := remoteBackend.ListBills(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored[0].LastPaid)

	_, err = a.PayBill(ctx, "missing", may1)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestGoalsForCategory(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)

	_, err := a.Goals.Add(ctx, domain.Goal{Name: "Food fund", LinkedCategories: []string{"Groceries"}})
	require.NoError(t, err)
	_, err = a.Goals.Add(ctx, domain.Goal{Name: "Phone", LinkedBillNames: []string{"Mobile plan"}})
	require.NoError(t, err)

	got := a.GoalsForCategory(" groceries ")
	require.Len(t, got, 1)
	assert.Equal(t, "Food fund", got[0].Name)
	assert.Len(t, a.GoalsForCategory("MOBILE PLAN"), 1)
	assert.Empty(t, a.GoalsForCategory(""))
}

func TestSettingsWritesPersistThroughQueue(t *testing.T) {
	ctx := context.Background()
	a, remoteBackend := newTestApp(t)

	require.NoError(t, a.Settings.SetCurrency(ctx, "€").Wait(ctx))
	s, err := remoteBackend.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "€", s.Currency)

	done, err := a.Jobs.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, jobs.JobTypeSettingsWrite, done[0].Type)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Backend.Kind = config.BackendSQLite
	cfg.SQLite.Path = ":memory:"

	b, err := OpenBackend(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NotEmpty(t, b.ClientID)
	assert.Equal(t, "u1", b.Header.Get("X-User-ID"))
	assert.Empty(t, b.ChangesURL)
	require.NoError(t, b.Close())

	cfg.Backend.Kind = config.BackendHTTP
	cfg.API.BaseURL = "https://api.example.com"
	b, err = OpenBackend(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/ws", b.ChangesURL)
	assert.Equal(t, b.ClientID, b.Header.Get("X-Client-ID"))

	cfg.Backend.Kind = "mongo"
	_, err = OpenBackend(ctx, cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpen_HTTPBackendReceivesChanges(t *testing.T) {
	ctx := context.Background()
	log := zerolog.New(io.Discard)
	hub := notify.NewHub(log)
	mux := http.NewServeMux()
	handlers.Register(mux, inmemory.NewDatabase().Factory(), hub, log)
	srv := httptest.NewServer(middleware.Session("")(mux))
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
	})

	cfg := testConfig()
	cfg.Backend.Kind = config.BackendHTTP
	cfg.API.BaseURL = srv.URL
	cfg.API.Timeout = 5 * time.Second
	cfg.Session.HouseholdID = "h1"
	cfg.Sync.Notify = true

	watcher, err := Open(ctx, cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { watcher.Close() })
	require.NoError(t, watcher.Init(ctx))

	require.Eventually(t, func() bool { return hub.Sessions() == 1 }, 5*time.Second, 10*time.Millisecond)

	cfg.Session.UserID = "u2"
	writer, err := Open(ctx, cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })

	_, err = writer.Ledger.Add(ctx, domain.NewTransaction{Date: may1, Amount: 42})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(watcher.Ledger.Get()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 42.0, watcher.Ledger.Get()[0].Amount)
}
