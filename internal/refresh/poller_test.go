package refresh

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestPoller_TickHonorsEnabled(t *testing.T) {
	ledger := &countingRefresher{}
	goals := &countingRefresher{err: errors.New("offline")}
	bills := &countingRefresher{}
	shared := false

	p := NewPoller(time.Hour, zerolog.New(io.Discard),
		Target{Name: "ledger", Store: ledger, Enabled: func() bool { return shared }},
		Target{Name: "goals", Store: goals},
		Target{Name: "bills", Store: bills, Enabled: func() bool { return false }},
	)

	p.Tick(context.Background())
	assert.Equal(t, int32(0), ledger.calls.Load())
	assert.Equal(t, int32(1), goals.calls.Load())
	assert.Equal(t, int32(0), bills.calls.Load())

	shared = true
	p.Tick(context.Background())
	assert.Equal(t, int32(1), ledger.calls.Load())
	assert.Equal(t, int32(2), goals.calls.Load())
}

func TestPoller_StartStop(t *testing.T) {
	ledger := &countingRefresher{}
	p := NewPoller(5*time.Millisecond, zerolog.New(io.Discard), Target{Name: "ledger", Store: ledger})

	p.Start(context.Background())
	p.Start(context.Background())
	assert.Eventually(t, func() bool { return ledger.calls.Load() >= 2 }, time.Second, time.Millisecond)

	p.Stop()
	n := ledger.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, ledger.calls.Load())

	p.Stop()
}
