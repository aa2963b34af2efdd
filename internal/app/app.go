// Package app wires a backend to the stores and runs the background sync that
// keeps them current. It also holds the flows that span more than one store.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/twocents/internal/api/wire"
	"github.com/dvloznov/twocents/internal/config"
	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/infra/bigquery"
	"github.com/dvloznov/twocents/internal/infra/sqlite"
	"github.com/dvloznov/twocents/internal/jobs"
	jobsmem "github.com/dvloznov/twocents/internal/jobs/inmemory"
	"github.com/dvloznov/twocents/internal/logger"
	"github.com/dvloznov/twocents/internal/notify"
	"github.com/dvloznov/twocents/internal/refresh"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/dvloznov/twocents/internal/remote/httpapi"
	"github.com/dvloznov/twocents/internal/remote/inmemory"
	"github.com/dvloznov/twocents/internal/report"
	"github.com/dvloznov/twocents/internal/store"
)

// Backend is an opened backend plus what the app needs to sync it.
type Backend struct {
	remote.Backend

	// ClientID tags this process's writes so change events it caused are
	// skipped by its own listener.
	ClientID string

	// ChangesURL and Header locate the change stream. ChangesURL is empty
	// when the backend has none.
	ChangesURL string
	Header     http.Header

	closers []io.Closer
}

// Close closes the session backend and the database behind it.
func (b *Backend) Close() error {
	errs := []error{b.Backend.Close()}
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenBackend opens the backend selected by cfg for cfg's session.
func OpenBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backend, error) {
	s := cfg.RemoteSession()
	b := &Backend{ClientID: uuid.NewString()}

	switch cfg.Backend.Kind {
	case config.BackendMemory:
		b.Backend = inmemory.NewDatabase().Backend(s)

	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite.Path, log)
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		b.Backend = db.Backend(s)
		b.closers = append(b.closers, db)

	case config.BackendBigQuery:
		client, err := bigquery.New(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset, log)
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		if err := client.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		b.Backend = client.Backend(s)
		b.closers = append(b.closers, client)

	case config.BackendHTTP:
		client := httpapi.New(cfg.API.BaseURL, s,
			httpapi.WithClientID(b.ClientID),
			httpapi.WithTimeout(cfg.API.Timeout))
		b.Backend = client
		b.Header = client.Header()
		url, err := client.ChangesURL()
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		b.ChangesURL = url

	default:
		return nil, fmt.Errorf("OpenBackend: unknown backend kind %q", cfg.Backend.Kind)
	}

	if cfg.Sync.WSURL != "" {
		b.ChangesURL = cfg.Sync.WSURL
	}
	if b.Header == nil {
		b.Header = http.Header{}
		b.Header.Set(wire.HeaderUserID, s.UserID)
		if s.HouseholdID != "" {
			b.Header.Set(wire.HeaderHouseholdID, s.HouseholdID)
		}
		b.Header.Set(wire.HeaderClientID, b.ClientID)
	}
	return b, nil
}

// App is one session's stores and their sync loops.
type App struct {
	Ledger   *store.Ledger
	Goals    *store.Goals
	Bills    *store.Bills
	Settings *store.Settings
	Jobs     *jobsmem.Store

	session  remote.Session
	backend  io.Closer
	queue    *jobsmem.Queue
	poller   *refresh.Poller
	listener *notify.Listener
	log      zerolog.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens the configured backend and starts an app on it.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	b, err := OpenBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := New(cfg, b, log)
	a.Start(ctx)
	return a, nil
}

// New wires the stores over b. Nothing runs until Start. The app owns b and
// closes it in Close.
func New(cfg *config.Config, b *Backend, log zerolog.Logger) *App {
	retries := cfg.Writes.MaxRetries
	if retries == 0 {
		retries = -1
	}
	jobStore := jobsmem.NewStore()
	queue := jobsmem.NewQueue(jobsmem.QueueConfig{MaxRetries: retries, Backoff: cfg.Writes.Backoff}, jobStore)

	s := cfg.RemoteSession()
	a := &App{
		Ledger:   store.NewLedger(b, log),
		Goals:    store.NewGoals(b, log),
		Bills:    store.NewBills(b, log),
		Settings: store.NewSettings(b, queue, log),
		Jobs:     jobStore,
		session:  s,
		backend:  b,
		queue:    queue,
		log:      log.With().Str("component", "app").Str("partition", s.PartitionKey()).Logger(),
		now:      time.Now,
	}

	pollAll := func() bool { return cfg.Sync.PollAll }
	a.poller = refresh.NewPoller(cfg.Sync.PollInterval, log,
		refresh.Target{Name: notify.EntityTransactions, Store: a.Ledger, Enabled: s.Shared},
		refresh.Target{Name: notify.EntityGoals, Store: a.Goals, Enabled: pollAll},
		refresh.Target{Name: notify.EntityBills, Store: a.Bills, Enabled: pollAll},
		refresh.Target{Name: notify.EntitySettings, Store: a.Settings, Enabled: pollAll},
	)

	if cfg.Sync.Notify && b.ChangesURL != "" {
		a.listener = notify.NewListener(b.ChangesURL, b.Header, b.ClientID, map[string]refresh.Refresher{
			notify.EntityTransactions: a.Ledger,
			notify.EntityGoals:        a.Goals,
			notify.EntityBills:        a.Bills,
			notify.EntitySettings:     a.Settings,
		}, log)
	}
	return a
}

// Start runs the write queue, the poller and the change listener until Close.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(logger.WithContext(ctx, a.log))

	if err := a.queue.Start(ctx, jobs.RunWrite); err != nil {
		a.log.Error().Err(err).Msg("Failed to start write queue")
	}
	a.poller.Start(ctx)
	if a.listener != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.listener.Run(ctx)
		}()
	}
	a.log.Debug().Bool("listener", a.listener != nil).Msg("Sync started")
}

// Session returns the session the stores are scoped to.
func (a *App) Session() remote.Session {
	return a.session
}

// Init loads every store.
func (a *App) Init(ctx context.Context) error {
	for _, load := range []func(context.Context) error{
		a.Ledger.EnsureInitialized,
		a.Goals.EnsureInitialized,
		a.Bills.EnsureInitialized,
		a.Settings.EnsureInitialized,
	} {
		if err := load(ctx); err != nil {
			return fmt.Errorf("Init: %w", err)
		}
	}
	return nil
}

// AddTransaction records t and, when linkedGoalID is set, contributes the
// transaction's absolute amount to that goal. The contribution is nil when no
// goal was linked.
func (a *App) AddTransaction(ctx context.Context, t domain.NewTransaction, linkedGoalID string) (domain.Transaction, *store.Contribution, error) {
	added, err := a.Ledger.Add(ctx, t)
	if err != nil {
		return domain.Transaction{}, nil, fmt.Errorf("AddTransaction: %w", err)
	}
	if linkedGoalID == "" {
		return added, nil, nil
	}

	amount := t.Amount
	if amount < 0 {
		amount = -amount
	}
	c, err := a.Goals.Contribute(ctx, linkedGoalID, amount, a.now())
	if err != nil {
		return added, nil, fmt.Errorf("AddTransaction: %w", err)
	}
	a.logCompletion(c)
	return added, &c, nil
}

// Payment is the outcome of PayBill.
type Payment struct {
	Bill         domain.Bill
	Transaction  domain.Transaction
	Contribution *store.Contribution
}

// PayBill records a payment of the bill on today: it adds the expense to the
// ledger, marks the bill paid and contributes the amount to the linked goal.
// Paying a bill already paid this cycle still records the payment.
func (a *App) PayBill(ctx context.Context, billID string, today civil.Date) (Payment, error) {
	if err := a.Bills.EnsureInitialized(ctx); err != nil {
		return Payment{}, err
	}
	bill, ok := a.Bills.Find(billID)
	if !ok {
		return Payment{}, fmt.Errorf("PayBill: %s: %w", billID, remote.ErrNotFound)
	}

	category := bill.Category
	if category == "" {
		if err := a.Settings.EnsureInitialized(ctx); err != nil {
			return Payment{}, err
		}
		category = report.Uncategorized
		if s := a.Settings.Get(); s != nil && len(s.Categories) > 0 {
			category = s.Categories[0].Name
		}
	}

	var p Payment
	txn, err := a.Ledger.Add(ctx, domain.NewTransaction{
		Date:     today,
		Amount:   -bill.Amount,
		Category: category,
		Note:     bill.Name + " - Monthly payment",
	})
	if err != nil {
		return p, fmt.Errorf("PayBill: %w", err)
	}
	p.Transaction = txn

	if err := a.Bills.MarkPaid(ctx, billID, today); err != nil {
		return p, fmt.Errorf("PayBill: %w", err)
	}
	p.Bill, _ = a.Bills.Find(billID)

	if bill.LinkedGoalID != "" {
		c, err := a.Goals.Contribute(ctx, bill.LinkedGoalID, bill.Amount, a.now())
		if err != nil {
			return p, fmt.Errorf("PayBill: %w", err)
		}
		a.logCompletion(c)
		p.Contribution = &c
	}
	return p, nil
}

// GoalsForCategory returns the goals linked to a spending category or bill
// name, compared case-insensitively.
func (a *App) GoalsForCategory(category string) []domain.Goal {
	name := strings.TrimSpace(category)
	if name == "" {
		return nil
	}
	match := func(s string) bool { return strings.EqualFold(s, name) }

	var out []domain.Goal
	for _, g := range a.Goals.Get() {
		if slices.ContainsFunc(g.LinkedCategories, match) || slices.ContainsFunc(g.LinkedBillNames, match) {
			out = append(out, g)
		}
	}
	return out
}

func (a *App) logCompletion(c store.Contribution) {
	if c.JustCompleted {
		a.log.Info().Str("goal_id", c.Goal.ID).Str("goal", c.Goal.Name).Msg("Goal completed")
	}
}

// Close stops the sync loops, waits for queued settings writes and closes
// the backend.
func (a *App) Close() error {
	if a.cancel != nil {
		a.poller.Stop()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.queue.Stop(stopCtx); err != nil {
			a.log.Warn().Err(err).Msg("Write queue did not drain")
		}
		a.cancel()
		a.wg.Wait()
	}
	return a.backend.Close()
}
