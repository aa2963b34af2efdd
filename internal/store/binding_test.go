package store

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinding_DeliversOnlyChanges(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newMockBackend(), testLogger())
	require.NoError(t, l.EnsureInitialized(ctx))

	b := Bind[[]domain.Transaction](l)
	defer b.Close()

	select {
	case <-b.Updates():
		t.Fatal("unexpected update before any change")
	default:
	}

	created, err := l.Add(ctx, domain.NewTransaction{Date: jan(1), Amount: 10})
	require.NoError(t, err)

	select {
	case snap := <-b.Updates():
		require.Len(t, snap, 1)
		assert.Equal(t, created.ID, snap[0].ID)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	// a no-op remove does not produce an update
	require.NoError(t, l.Remove(ctx, "missing"))
	select {
	case <-b.Updates():
		t.Fatal("unexpected update for unchanged snapshot")
	default:
	}
}

func TestBinding_CoalescesToLatest(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newMockBackend(), testLogger())
	require.NoError(t, l.EnsureInitialized(ctx))

	b := Bind[[]domain.Transaction](l)
	for i := 1; i <= 3; i++ {
		_, err := l.Add(ctx, domain.NewTransaction{Date: jan(i), Amount: float64(i)})
		require.NoError(t, err)
	}

	snap := <-b.Updates()
	assert.Len(t, snap, 3)
	assert.True(t, sameSlice(snap, b.Current()))

	b.Close()
	b.Close()
	_, open := <-b.Updates()
	assert.False(t, open)

	// changes after Close are ignored
	_, err := l.Add(ctx, domain.NewTransaction{Date: jan(9), Amount: 1})
	require.NoError(t, err)
}

func TestBinding_Settings(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSettings(t, newMockBackend())
	require.NoError(t, s.EnsureInitialized(ctx))

	b := Bind[*domain.Settings](s)
	defer b.Close()

	s.SetUIMode(ctx, domain.UIModeMinimalist)
	got := <-b.Updates()
	assert.Equal(t, domain.UIModeMinimalist, got.UIMode)
	assert.Same(t, got, b.Current())
}
