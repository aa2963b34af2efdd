package inmemory

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) civil.Date {
	return civil.Date{Year: 2024, Month: time.March, Day: d}
}

func TestBackend_TransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	b := NewDatabase().Backend(remote.LocalSession)

	_, err := b.AddTransaction(ctx, domain.NewTransaction{Date: day(1), Amount: 2000})
	require.NoError(t, err)
	_, err = b.AddTransaction(ctx, domain.NewTransaction{Date: day(5), Amount: -50, Category: "Groceries"})
	require.NoError(t, err)
	third, err := b.AddTransaction(ctx, domain.NewTransaction{Date: day(1), Amount: -10, Category: "Fun"})
	require.NoError(t, err)
	assert.NotEmpty(t, third.ID)

	list, err := b.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, day(5), list[0].Date)
	assert.Equal(t, third.ID, list[1].ID)
	assert.Equal(t, 2000.0, list[2].Amount)

	require.NoError(t, b.RemoveTransaction(ctx, third.ID))
	require.NoError(t, b.RemoveTransaction(ctx, "missing"))
	list, _ = b.ListTransactions(ctx)
	assert.Len(t, list, 2)

	require.NoError(t, b.ClearTransactions(ctx))
	list, _ = b.ListTransactions(ctx)
	assert.Empty(t, list)
}

func TestBackend_PartitionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := NewDatabase()
	alice := db.Backend(remote.Session{UserID: "alice"})
	bob := db.Backend(remote.Session{UserID: "bob"})
	shared := db.Backend(remote.Session{UserID: "bob", HouseholdID: "h1"})

	_, err := alice.AddTransaction(ctx, domain.NewTransaction{Date: day(1), Amount: 5})
	require.NoError(t, err)
	tx, err := shared.AddTransaction(ctx, domain.NewTransaction{Date: day(1), Amount: 7})
	require.NoError(t, err)
	assert.Equal(t, "h1", tx.HouseholdID)

	list, _ := bob.ListTransactions(ctx)
	assert.Empty(t, list)

	// another member of the household sees the shared row
	list, _ = db.Backend(remote.Session{UserID: "carol", HouseholdID: "h1"}).ListTransactions(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, 7.0, list[0].Amount)
}

func TestBackend_GoalUpdateAndCopies(t *testing.T) {
	ctx := context.Background()
	b := NewDatabase().Backend(remote.LocalSession)

	_, err := b.AddGoal(ctx, domain.Goal{})
	assert.ErrorIs(t, err, remote.ErrInvalid)

	g, err := b.AddGoal(ctx, domain.Goal{Name: "Trip", Target: 100, LinkedCategories: []string{"Fun"}})
	require.NoError(t, err)

	require.NoError(t, b.UpdateGoal(ctx, g.ID, domain.GoalPatch{Current: domain.Set(40.0)}))
	err = b.UpdateGoal(ctx, "missing", domain.GoalPatch{Current: domain.Set(1.0)})
	assert.ErrorIs(t, err, remote.ErrNotFound)

	goals, err := b.ListGoals(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, 40.0, goals[0].Current)

	goals[0].LinkedCategories[0] = "changed"
	again, _ := b.ListGoals(ctx)
	assert.Equal(t, []string{"Fun"}, again[0].LinkedCategories)
}

func TestBackend_RemoveGoalUnlinksBills(t *testing.T) {
	ctx := context.Background()
	b := NewDatabase().Backend(remote.LocalSession)

	g, err := b.AddGoal(ctx, domain.Goal{Name: "Car"})
	require.NoError(t, err)
	bill, err := b.AddBill(ctx, domain.Bill{Name: "Loan", Amount: 200, DueDay: 5, LinkedGoalID: g.ID})
	require.NoError(t, err)

	require.NoError(t, b.RemoveGoal(ctx, g.ID))

	bills, err := b.ListBills(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, bill.ID, bills[0].ID)
	assert.Empty(t, bills[0].LinkedGoalID)
}

func TestBackend_SettingsDefaultThenPatch(t *testing.T) {
	ctx := context.Background()
	b := NewDatabase().Backend(remote.LocalSession)

	s, err := b.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCurrency, s.Currency)
	require.Len(t, s.Categories, 4)

	require.NoError(t, b.UpdateSettings(ctx, domain.SettingsPatch{Currency: domain.Set("€")}))
	s2, err := b.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "€", s2.Currency)
	// defaults are persisted once, so ids are stable across reads
	assert.Equal(t, s.Categories, s2.Categories)
}

func TestBackend_GoalsAndBillsNewestFirst(t *testing.T) {
	ctx := context.Background()
	b := NewDatabase().Backend(remote.LocalSession)

	first, err := b.AddGoal(ctx, domain.Goal{Name: "Trip"})
	require.NoError(t, err)
	second, err := b.AddGoal(ctx, domain.Goal{Name: "Car"})
	require.NoError(t, err)
	goals, err := b.ListGoals(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, second.ID, goals[0].ID)
	assert.Equal(t, first.ID, goals[1].ID)

	rent, err := b.AddBill(ctx, domain.Bill{Name: "Rent", Amount: 900, DueDay: 1})
	require.NoError(t, err)
	gym, err := b.AddBill(ctx, domain.Bill{Name: "Gym", Amount: 30, DueDay: 20})
	require.NoError(t, err)
	bills, err := b.ListBills(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, gym.ID, bills[0].ID)
	assert.Equal(t, rent.ID, bills[1].ID)
}
