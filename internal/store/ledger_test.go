package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/twocents/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jan(d int) civil.Date {
	return civil.Date{Year: 2024, Month: time.January, Day: d}
}

func TestLedger_ReferenceStability(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newMockBackend(), testLogger())

	_, err := l.Add(ctx, domain.NewTransaction{Date: jan(3), Amount: -12, Category: "Fun"})
	require.NoError(t, err)

	first := l.Get()
	second := l.Get()
	assert.True(t, sameSlice(first, second))
	v := l.Version()

	_, err = l.Add(ctx, domain.NewTransaction{Date: jan(4), Amount: -8, Category: "Fun"})
	require.NoError(t, err)
	assert.False(t, sameSlice(first, l.Get()))
	assert.Greater(t, l.Version(), v)

	// the old snapshot is untouched
	assert.Len(t, first, 1)

	// removing an unknown id changes nothing
	snap := l.Get()
	require.NoError(t, l.Remove(ctx, "missing"))
	assert.True(t, sameSlice(snap, l.Get()))
}

func TestLedger_MutationVisibility(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newMockBackend(), testLogger())

	created, err := l.Add(ctx, domain.NewTransaction{Date: jan(2), Amount: -30, Category: "Groceries", Who: "Ana"})
	require.NoError(t, err)
	assert.Contains(t, l.Get(), created)

	require.NoError(t, l.Remove(ctx, created.ID))
	for _, tx := range l.Get() {
		assert.NotEqual(t, created.ID, tx.ID)
	}
}

func TestLedger_InitializeOnce(t *testing.T) {
	m := newMockBackend()
	release := make(chan struct{})
	m.ListTransactionsFunc = func(ctx context.Context) ([]domain.Transaction, error) {
		<-release
		return []domain.Transaction{{ID: "t1", Date: jan(1), Amount: 5}}, nil
	}
	l := NewLedger(m, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.EnsureInitialized(context.Background()))
		}()
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), m.listTransactionsCalls.Load())
	require.Len(t, l.Get(), 1)

	require.NoError(t, l.EnsureInitialized(context.Background()))
	assert.Equal(t, int32(1), m.listTransactionsCalls.Load())
}

func TestLedger_InitializeFailureStartsEmpty(t *testing.T) {
	m := newMockBackend()
	m.ListTransactionsFunc = func(ctx context.Context) ([]domain.Transaction, error) {
		return nil, errors.New("offline")
	}
	l := NewLedger(m, testLogger())

	var notified atomic.Int32
	l.Subscribe(func() { notified.Add(1) })

	require.NoError(t, l.EnsureInitialized(context.Background()))
	assert.NotNil(t, l.Get())
	assert.Empty(t, l.Get())
	assert.Equal(t, int32(1), notified.Load())

	// refresh errors are returned and leave the cache alone
	assert.Error(t, l.Refresh(context.Background()))
	assert.Empty(t, l.Get())
}

func TestLedger_WaitingCallerCanGiveUp(t *testing.T) {
	m := newMockBackend()
	release := make(chan struct{})
	defer close(release)
	m.ListTransactionsFunc = func(ctx context.Context) ([]domain.Transaction, error) {
		<-release
		return nil, nil
	}
	l := NewLedger(m, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.EnsureInitialized(ctx), context.DeadlineExceeded)
}

func TestLedger_ConcurrentAddsPrependInCompletionOrder(t *testing.T) {
	ctx := context.Background()
	m := newMockBackend()
	gates := map[string]chan struct{}{
		"a": make(chan struct{}),
		"b": make(chan struct{}),
	}
	m.AddTransactionFunc = func(ctx context.Context, t domain.NewTransaction) (domain.Transaction, error) {
		<-gates[t.Note]
		return t.WithID(t.Note, ""), nil
	}
	l := NewLedger(m, testLogger())
	require.NoError(t, l.EnsureInitialized(ctx))

	doneA := make(chan struct{})
	go func() {
		defer close(doneA)
		_, err := l.Add(ctx, domain.NewTransaction{Date: jan(1), Amount: -1, Note: "a"})
		assert.NoError(t, err)
	}()
	doneB := make(chan struct{})
	go func() {
		defer close(doneB)
		_, err := l.Add(ctx, domain.NewTransaction{Date: jan(1), Amount: -2, Note: "b"})
		assert.NoError(t, err)
	}()

	close(gates["b"])
	<-doneB
	require.Len(t, l.Get(), 1)
	assert.Equal(t, "b", l.Get()[0].ID)

	close(gates["a"])
	<-doneA
	require.Len(t, l.Get(), 2)
	assert.Equal(t, "a", l.Get()[0].ID)
	assert.Equal(t, "b", l.Get()[1].ID)
}

func TestLedger_Scenario(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newMockBackend(), testLogger())
	require.NoError(t, l.EnsureInitialized(ctx))
	assert.Empty(t, l.Get())

	_, err := l.Add(ctx, domain.NewTransaction{Date: jan(10), Amount: -50, Category: "Groceries"})
	require.NoError(t, err)
	_, err = l.Add(ctx, domain.NewTransaction{Date: jan(5), Amount: 2000})
	require.NoError(t, err)
	require.NoError(t, l.Refresh(ctx))

	txns := l.Get()
	require.Len(t, txns, 2)
	assert.Equal(t, jan(10), txns[0].Date)
	assert.Equal(t, jan(5), txns[1].Date)

	var income, spending float64
	for _, tx := range txns {
		if tx.Amount > 0 {
			income += tx.Amount
		} else {
			spending -= tx.Amount
		}
	}
	assert.Equal(t, 2000.0, income)
	assert.Equal(t, 50.0, spending)

	require.NoError(t, l.Clear(ctx))
	assert.Empty(t, l.Get())
	require.NoError(t, l.Refresh(ctx))
	assert.Empty(t, l.Get())
}

func TestLedger_AddFailureLeavesCache(t *testing.T) {
	ctx := context.Background()
	m := newMockBackend()
	m.AddTransactionFunc = func(ctx context.Context, t domain.NewTransaction) (domain.Transaction, error) {
		return domain.Transaction{}, errors.New("denied")
	}
	l := NewLedger(m, testLogger())

	_, err := l.Add(ctx, domain.NewTransaction{Date: jan(1), Amount: -1})
	assert.EqualError(t, err, "Ledger.Add: denied")
	assert.Empty(t, l.Get())
}

func TestLedger_SubscribersAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newMockBackend(), testLogger())

	var a, b atomic.Int32
	unsubA := l.Subscribe(func() { a.Add(1) })
	l.Subscribe(func() { b.Add(1) })
	require.NoError(t, l.EnsureInitialized(ctx))

	unsubA()
	unsubA()
	_, err := l.Add(ctx, domain.NewTransaction{Date: jan(1), Amount: 3})
	require.NoError(t, err)

	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(2), b.Load())
}
