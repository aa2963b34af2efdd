package sqlite

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:", zerolog.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t).Backend(remote.LocalSession)

	first, err := b.AddTransaction(ctx, domain.NewTransaction{Date: date(2024, time.January, 10), Amount: -50, Category: "Groceries"})
	require.NoError(t, err)
	_, err = b.AddTransaction(ctx, domain.NewTransaction{Date: date(2024, time.January, 5), Amount: 2000})
	require.NoError(t, err)
	same, err := b.AddTransaction(ctx, domain.NewTransaction{Date: date(2024, time.January, 10), Amount: -5, Note: "Coffee", Who: "Ana"})
	require.NoError(t, err)

	txs, err := b.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, same.ID, txs[0].ID)
	assert.Equal(t, first.ID, txs[1].ID)
	assert.Equal(t, 2000.0, txs[2].Amount)
	assert.Empty(t, txs[2].Category)
	assert.Equal(t, "Ana", txs[0].Who)

	require.NoError(t, b.RemoveTransaction(ctx, first.ID))
	require.NoError(t, b.RemoveTransaction(ctx, first.ID))
	txs, err = b.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	require.NoError(t, b.ClearTransactions(ctx))
	txs, err = b.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestPartitions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	alice := db.Backend(remote.Session{UserID: "alice", HouseholdID: "h1"})
	bob := db.Backend(remote.Session{UserID: "bob", HouseholdID: "h1"})
	carol := db.Backend(remote.Session{UserID: "carol"})

	tx, err := alice.AddTransaction(ctx, domain.NewTransaction{Date: date(2024, time.March, 1), Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, "h1", tx.HouseholdID)

	got, err := bob.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h1", got[0].HouseholdID)

	got, err = carol.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, carol.RemoveTransaction(ctx, tx.ID))
	got, err = bob.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGoals(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t).Backend(remote.LocalSession)

	due := date(2025, time.June, 1)
	g, err := b.AddGoal(ctx, domain.Goal{
		Name:             "Trip",
		Current:          40,
		Target:           100,
		Category:         domain.GoalFun,
		TargetDate:       &due,
		Color:            "#00f",
		LinkedCategories: []string{"Fun", "Eating Out"},
	})
	require.NoError(t, err)
	debt, err := b.AddGoal(ctx, domain.Goal{Name: "Card", IsDebt: true, Current: 500, OriginalDebt: domain.Ptr(500.0), LinkedBillNames: []string{"Visa"}})
	require.NoError(t, err)

	goals, err := b.ListGoals(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, g.ID, goals[1].ID)
	assert.Equal(t, []string{"Fun", "Eating Out"}, goals[1].LinkedCategories)
	require.NotNil(t, goals[1].TargetDate)
	assert.Equal(t, due, *goals[1].TargetDate)
	assert.True(t, goals[0].IsDebt)
	require.NotNil(t, goals[0].OriginalDebt)
	assert.Equal(t, 500.0, *goals[0].OriginalDebt)
	assert.Equal(t, []string{"Visa"}, goals[0].LinkedBillNames)
	assert.Equal(t, domain.GoalOther, goals[0].Category)

	done := time.Date(2025, time.May, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, b.UpdateGoal(ctx, g.ID, domain.GoalPatch{
		Current:          domain.Set(100.0),
		CompletedAt:      domain.Set(&done),
		TargetDate:       domain.Set[*civil.Date](nil),
		LinkedCategories: domain.Set([]string{"Travel"}),
	}))

	goals, err = b.ListGoals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, goals[1].Current)
	assert.Nil(t, goals[1].TargetDate)
	require.NotNil(t, goals[1].CompletedAt)
	assert.True(t, done.Equal(*goals[1].CompletedAt))
	assert.Equal(t, []string{"Travel"}, goals[1].LinkedCategories)
	assert.Equal(t, "#00f", goals[1].Color)
	assert.Equal(t, []string{"Visa"}, goals[0].LinkedBillNames)

	err = b.UpdateGoal(ctx, "missing", domain.GoalPatch{Current: domain.Set(1.0)})
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = b.AddGoal(ctx, domain.Goal{Target: 1})
	assert.ErrorIs(t, err, remote.ErrInvalid)

	require.NoError(t, b.RemoveGoal(ctx, debt.ID))
	goals, err = b.ListGoals(ctx)
	require.NoError(t, err)
	assert.Len(t, goals, 1)
}

func TestBills_GoalRemovalUnlinks(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t).Backend(remote.LocalSession)

	g, err := b.AddGoal(ctx, domain.Goal{Name: "Car loan", IsDebt: true, Current: 3000})
	require.NoError(t, err)
	bill, err := b.AddBill(ctx, domain.Bill{Name: "Car", Amount: 250, DueDay: 15, LinkedGoalID: g.ID, Category: "Bills"})
	require.NoError(t, err)

	paid := date(2025, time.April, 15)
	require.NoError(t, b.UpdateBill(ctx, bill.ID, domain.BillPatch{LastPaid: domain.Set(&paid)}))

	bills, err := b.ListBills(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	require.NotNil(t, bills[0].LastPaid)
	assert.Equal(t, paid, *bills[0].LastPaid)
	assert.Equal(t, g.ID, bills[0].LinkedGoalID)

	require.NoError(t, b.RemoveGoal(ctx, g.ID))
	bills, err = b.ListBills(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Empty(t, bills[0].LinkedGoalID)
	assert.Equal(t, "Bills", bills[0].Category)

	require.NoError(t, b.UpdateBill(ctx, bill.ID, domain.BillPatch{LastPaid: domain.Set[*civil.Date](nil)}))
	bills, err = b.ListBills(ctx)
	require.NoError(t, err)
	assert.Nil(t, bills[0].LastPaid)
}

func TestBills_RejectsUnknownGoal(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t).Backend(remote.LocalSession)

	_, err := b.AddBill(ctx, domain.Bill{Name: "Gym", Amount: 30, DueDay: 3, LinkedGoalID: "nope"})
	assert.ErrorIs(t, err, remote.ErrInvalid)

	err = b.UpdateBill(ctx, "missing", domain.BillPatch{Amount: domain.Set(1.0)})
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t).Backend(remote.LocalSession)

	first, err := b.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCurrency, first.Currency)
	assert.Equal(t, domain.UIModeProfessional, first.UIMode)
	require.Len(t, first.Categories, 4)
	assert.Equal(t, "Partner 1", first.CoupleMode.Partner1Name)

	again, err := b.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Categories, again.Categories)

	cats := append([]domain.Category{{ID: "c-new", Name: "Travel", Limit: 300}}, first.Categories...)
	require.NoError(t, b.UpdateSettings(ctx, domain.SettingsPatch{
		Currency:   domain.Set("€"),
		Categories: domain.Set(cats),
		CoupleMode: domain.Set(domain.CoupleMode{Enabled: true, Partner1Name: "Ana", Partner2Name: "Ben"}),
	}))

	got, err := b.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "€", got.Currency)
	assert.Equal(t, domain.UIModeProfessional, got.UIMode)
	require.Len(t, got.Categories, 5)
	assert.Equal(t, "Travel", got.Categories[0].Name)
	assert.True(t, got.CoupleMode.Enabled)
	assert.Equal(t, "Ben", got.CoupleMode.Partner2Name)
}

func TestSettings_DuplicateNamesCollapse(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t).Backend(remote.LocalSession)

	require.NoError(t, b.UpdateSettings(ctx, domain.SettingsPatch{Categories: domain.Set([]domain.Category{
		{ID: "1", Name: "Groceries", Limit: 100},
		{ID: "2", Name: "groceries", Limit: 200},
	})}))

	got, err := b.GetSettings(ctx)
	require.NoError(t, err)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, "1", got.Categories[0].ID)
}

func TestOpen_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "twocents.db")

	db, err := Open(ctx, path, zerolog.New(io.Discard))
	require.NoError(t, err)
	_, err = db.Backend(remote.LocalSession).AddBill(ctx, domain.Bill{Name: "Rent", Amount: 1400, DueDay: 1})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path, zerolog.New(io.Discard))
	require.NoError(t, err)
	defer db.Close()
	bills, err := db.Backend(remote.LocalSession).ListBills(ctx)
	require.NoError(t, err)
	assert.Len(t, bills, 1)
}

func TestBills_NewestFirst(t *testing.T) {
	ctx := context.Background()
	b := openTestDB(t).Backend(remote.LocalSession)

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
