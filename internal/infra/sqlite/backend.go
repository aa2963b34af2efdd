package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
)

// Settings keys.
const (
	keyCurrency   = "currency"
	keyUIMode     = "ui_mode"
	keyCoupleMode = "couple_mode"
)

// Backend implements remote.Backend for one session.
type Backend struct {
	db      *sql.DB
	session remote.Session
}

// Close implements remote.Backend. The database is owned by DB.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) owner() string {
	return b.session.PartitionKey()
}

// ListTransactions implements remote.TransactionClient. Rows of the same date
// are returned most recently added first.
func (b *Backend) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, COALESCE(household_id, ''), date, amount, COALESCE(category, ''), COALESCE(note, ''), COALESCE(who, '')
		FROM transactions
		WHERE owner_key = ?
		ORDER BY date DESC, rowid DESC
	`, b.owner())
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query: %w", err)
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		var (
			t    domain.Transaction
			date string
		)
		if err := rows.Scan(&t.ID, &t.HouseholdID, &date, &t.Amount, &t.Category, &t.Note, &t.Who); err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}
		if t.Date, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("ListTransactions: %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return out, nil
}

// AddTransaction implements remote.TransactionClient.
func (b *Backend) AddTransaction(ctx context.Context, t domain.NewTransaction) (domain.Transaction, error) {
	tx := t.WithID(uuid.NewString(), b.session.HouseholdID)
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_key, household_id, date, amount, category, note, who)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, b.owner(), nullString(tx.HouseholdID), tx.Date.String(), tx.Amount,
		nullString(tx.Category), nullString(tx.Note), nullString(tx.Who))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: %w", err)
	}
	return tx, nil
}

// RemoveTransaction implements remote.TransactionClient.
func (b *Backend) RemoveTransaction(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND owner_key = ?`, id, b.owner()); err != nil {
		return fmt.Errorf("RemoveTransaction: %w", err)
	}
	return nil
}

// ClearTransactions implements remote.TransactionClient.
func (b *Backend) ClearTransactions(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM transactions WHERE owner_key = ?`, b.owner()); err != nil {
		return fmt.Errorf("ClearTransactions: %w", err)
	}
	return nil
}

const goalColumns = `id, COALESCE(household_id, ''), name, current, target, category, target_date, color, is_debt, original_debt, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(row scanner) (domain.Goal, error) {
	var (
		g            domain.Goal
		category     string
		targetDate   sql.NullString
		originalDebt sql.NullFloat64
		completedAt  sql.NullString
	)
	if err := row.Scan(&g.ID, &g.HouseholdID, &g.Name, &g.Current, &g.Target, &category,
		&targetDate, &g.Color, &g.IsDebt, &originalDebt, &completedAt); err != nil {
		return domain.Goal{}, err
	}
	g.Category = domain.GoalCategory(category)
	if targetDate.Valid {
		d, err := civil.ParseDate(targetDate.String)
		if err != nil {
			return domain.Goal{}, fmt.Errorf("target_date: %w", err)
		}
		g.TargetDate = &d
	}
	if originalDebt.Valid {
		g.OriginalDebt = &originalDebt.Float64
	}
	if completedAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return domain.Goal{}, fmt.Errorf("completed_at: %w", err)
		}
		g.CompletedAt = &at
	}
	return g, nil
}

// ListGoals implements remote.GoalClient. Goals are returned newest first
// with their linked lists.
func (b *Backend) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE owner_key = ? ORDER BY rowid DESC`, b.owner())
	if err != nil {
		return nil, fmt.Errorf("ListGoals: query: %w", err)
	}
	defer rows.Close()

	out := []domain.Goal{}
	index := map[string]int{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("ListGoals: scan: %w", err)
		}
		index[g.ID] = len(out)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListGoals: %w", err)
	}
	rows.Close()

	err = b.eachLink(ctx, `
		SELECT l.goal_id, l.category FROM goal_linked_categories l
		JOIN goals g ON g.id = l.goal_id
		WHERE g.owner_key = ? ORDER BY l.rowid
	`, func(goalID, v string) {
		if i, ok := index[goalID]; ok {
			out[i].LinkedCategories = append(out[i].LinkedCategories, v)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ListGoals: categories: %w", err)
	}

	err = b.eachLink(ctx, `
		SELECT l.goal_id, l.bill_name FROM goal_linked_bills l
		JOIN goals g ON g.id = l.goal_id
		WHERE g.owner_key = ? ORDER BY l.rowid
	`, func(goalID, v string) {
		if i, ok := index[goalID]; ok {
			out[i].LinkedBillNames = append(out[i].LinkedBillNames, v)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ListGoals: bills: %w", err)
	}
	return out, nil
}

func (b *Backend) eachLink(ctx context.Context, query string, fn func(goalID, value string)) error {
	rows, err := b.db.QueryContext(ctx, query, b.owner())
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, v string
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		fn(id, v)
	}
	return rows.Err()
}

// AddGoal implements remote.GoalClient.
func (b *Backend) AddGoal(ctx context.Context, g domain.Goal) (domain.Goal, error) {
	if g.Name == "" {
		return domain.Goal{}, fmt.Errorf("AddGoal: name is required: %w", remote.ErrInvalid)
	}
	if g.Category == "" {
		g.Category = domain.GoalOther
	}
	g.ID = uuid.NewString()
	g.HouseholdID = b.session.HouseholdID

	err := withTx(ctx, b.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO goals (id, owner_key, household_id, name, current, target, category, target_date, color, is_debt, original_debt, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, g.ID, b.owner(), nullString(g.HouseholdID), g.Name, g.Current, g.Target, string(g.Category),
			nullDate(g.TargetDate), g.Color, g.IsDebt, g.OriginalDebt, nullTime(g.CompletedAt))
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return writeLinks(ctx, tx, g.ID, g.LinkedCategories, g.LinkedBillNames, true, true)
	})
	if err != nil {
		return domain.Goal{}, fmt.Errorf("AddGoal: %w", err)
	}
	return g, nil
}

// UpdateGoal implements remote.GoalClient.
func (b *Backend) UpdateGoal(ctx context.Context, id string, patch domain.GoalPatch) error {
	err := withTx(ctx, b.db, func(tx *sql.Tx) error {
		cur, err := scanGoal(tx.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ? AND owner_key = ?`, id, b.owner()))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", id, remote.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}

		g := patch.Apply(cur)
		_, err = tx.ExecContext(ctx, `
			UPDATE goals SET name = ?, current = ?, target = ?, category = ?, target_date = ?, color = ?,
				is_debt = ?, original_debt = ?, completed_at = ?
			WHERE id = ? AND owner_key = ?
		`, g.Name, g.Current, g.Target, string(g.Category), nullDate(g.TargetDate), g.Color,
			g.IsDebt, g.OriginalDebt, nullTime(g.CompletedAt), id, b.owner())
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		return writeLinks(ctx, tx, id, g.LinkedCategories, g.LinkedBillNames,
			patch.LinkedCategories.IsSet(), patch.LinkedBillNames.IsSet())
	})
	if err != nil {
		return fmt.Errorf("UpdateGoal: %w", err)
	}
	return nil
}

// writeLinks replaces the goal's link rows for each list whose flag is set.
func writeLinks(ctx context.Context, tx *sql.Tx, goalID string, categories, bills []string, setCategories, setBills bool) error {
	if setCategories {
		if _, err := tx.ExecContext(ctx, `DELETE FROM goal_linked_categories WHERE goal_id = ?`, goalID); err != nil {
			return fmt.Errorf("clear categories: %w", err)
		}
		for _, c := range categories {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO goal_linked_categories (goal_id, category) VALUES (?, ?)`, goalID, c); err != nil {
				return fmt.Errorf("link category: %w", err)
			}
		}
	}
	if setBills {
		if _, err := tx.ExecContext(ctx, `DELETE FROM goal_linked_bills WHERE goal_id = ?`, goalID); err != nil {
			return fmt.Errorf("clear bills: %w", err)
		}
		for _, name := range bills {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO goal_linked_bills (goal_id, bill_name) VALUES (?, ?)`, goalID, name); err != nil {
				return fmt.Errorf("link bill: %w", err)
			}
		}
	}
	return nil
}

// RemoveGoal implements remote.GoalClient. Link rows cascade and bills
// pointing at the goal are unlinked by the schema.
func (b *Backend) RemoveGoal(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ? AND owner_key = ?`, id, b.owner()); err != nil {
		return fmt.Errorf("RemoveGoal: %w", err)
	}
	return nil
}

const billColumns = `id, COALESCE(household_id, ''), name, amount, due_day, last_paid, COALESCE(linked_goal_id, ''), COALESCE(category, '')`

func scanBill(row scanner) (domain.Bill, error) {
	var (
		bill     domain.Bill
		lastPaid sql.NullString
	)
	if err := row.Scan(&bill.ID, &bill.HouseholdID, &bill.Name, &bill.Amount, &bill.DueDay,
		&lastPaid, &bill.LinkedGoalID, &bill.Category); err != nil {
		return domain.Bill{}, err
	}
	if lastPaid.Valid {
		d, err := civil.ParseDate(lastPaid.String)
		if err != nil {
			return domain.Bill{}, fmt.Errorf("last_paid: %w", err)
		}
		bill.LastPaid = &d
	}
	return bill, nil
}

// ListBills implements remote.BillClient.
func (b *Backend) ListBills(ctx context.Context) ([]domain.Bill, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+billColumns+` FROM recurring_bills WHERE owner_key = ? ORDER BY rowid DESC`, b.owner())
	if err != nil {
		return nil, fmt.Errorf("ListBills: query: %w", err)
	}
	defer rows.Close()

	out := []domain.Bill{}
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("ListBills: scan: %w", err)
		}
		out = append(out, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListBills: %w", err)
	}
	return out, nil
}

// AddBill implements remote.BillClient. A link to a goal outside the
// session's partition is rejected.
func (b *Backend) AddBill(ctx context.Context, bill domain.Bill) (domain.Bill, error) {
	if bill.Name == "" {
		return domain.Bill{}, fmt.Errorf("AddBill: name is required: %w", remote.ErrInvalid)
	}
	bill.ID = uuid.NewString()
	bill.HouseholdID = b.session.HouseholdID

	err := withTx(ctx, b.db, func(tx *sql.Tx) error {
		if err := b.checkGoal(ctx, tx, bill.LinkedGoalID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recurring_bills (id, owner_key, household_id, name, amount, due_day, last_paid, linked_goal_id, category)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, bill.ID, b.owner(), nullString(bill.HouseholdID), bill.Name, bill.Amount, bill.DueDay,
			nullDate(bill.LastPaid), nullString(bill.LinkedGoalID), nullString(bill.Category))
		return err
	})
	if err != nil {
		return domain.Bill{}, fmt.Errorf("AddBill: %w", err)
	}
	return bill, nil
}

// UpdateBill implements remote.BillClient.
func (b *Backend) UpdateBill(ctx context.Context, id string, patch domain.BillPatch) error {
	err := withTx(ctx, b.db, func(tx *sql.Tx) error {
		cur, err := scanBill(tx.QueryRowContext(ctx, `SELECT `+billColumns+` FROM recurring_bills WHERE id = ? AND owner_key = ?`, id, b.owner()))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", id, remote.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}

		bill := patch.Apply(cur)
		if patch.LinkedGoalID.IsSet() {
			if err := b.checkGoal(ctx, tx, bill.LinkedGoalID); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE recurring_bills SET name = ?, amount = ?, due_day = ?, last_paid = ?, linked_goal_id = ?, category = ?
			WHERE id = ? AND owner_key = ?
		`, bill.Name, bill.Amount, bill.DueDay, nullDate(bill.LastPaid), nullString(bill.LinkedGoalID),
			nullString(bill.Category), id, b.owner())
		return err
	})
	if err != nil {
		return fmt.Errorf("UpdateBill: %w", err)
	}
	return nil
}

func (b *Backend) checkGoal(ctx context.Context, tx *sql.Tx, goalID string) error {
	if goalID == "" {
		return nil
	}
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM goals WHERE id = ? AND owner_key = ?`, goalID, b.owner()).Scan(&n)
	if err != nil {
		return fmt.Errorf("check goal: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("linked goal %s does not exist: %w", goalID, remote.ErrInvalid)
	}
	return nil
}

// RemoveBill implements remote.BillClient.
func (b *Backend) RemoveBill(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM recurring_bills WHERE id = ? AND owner_key = ?`, id, b.owner()); err != nil {
		return fmt.Errorf("RemoveBill: %w", err)
	}
	return nil
}

// GetSettings implements remote.SettingsClient. Defaults are stored on the
// first read so category ids stay stable.
func (b *Backend) GetSettings(ctx context.Context) (domain.Settings, error) {
	var s domain.Settings
	err := withTx(ctx, b.db, func(tx *sql.Tx) error {
		var err error
		s, err = b.loadSettings(ctx, tx)
		return err
	})
	if err != nil {
		return domain.Settings{}, fmt.Errorf("GetSettings: %w", err)
	}
	return s, nil
}

// UpdateSettings implements remote.SettingsClient.
func (b *Backend) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) error {
	err := withTx(ctx, b.db, func(tx *sql.Tx) error {
		cur, err := b.loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		return b.saveSettings(ctx, tx, patch.Apply(cur), patch)
	})
	if err != nil {
		return fmt.Errorf("UpdateSettings: %w", err)
	}
	return nil
}

func (b *Backend) loadSettings(ctx context.Context, tx *sql.Tx) (domain.Settings, error) {
	values := map[string]string{}
	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM settings WHERE owner_key = ?`, b.owner())
	if err != nil {
		return domain.Settings{}, fmt.Errorf("query settings: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return domain.Settings{}, fmt.Errorf("scan settings: %w", err)
		}
		values[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Settings{}, fmt.Errorf("settings: %w", err)
	}

	if len(values) == 0 {
		s := domain.DefaultSettings()
		all := domain.SettingsPatch{
			Currency:   domain.Set(s.Currency),
			UIMode:     domain.Set(s.UIMode),
			Categories: domain.Set(s.Categories),
			CoupleMode: domain.Set(s.CoupleMode),
		}
		if err := b.saveSettings(ctx, tx, s, all); err != nil {
			return domain.Settings{}, err
		}
		return s, nil
	}

	s := domain.DefaultSettings()
	s.Currency = values[keyCurrency]
	s.UIMode = domain.UIMode(values[keyUIMode])
	if raw, ok := values[keyCoupleMode]; ok {
		if err := json.Unmarshal([]byte(raw), &s.CoupleMode); err != nil {
			return domain.Settings{}, fmt.Errorf("couple mode: %w", err)
		}
	}

	crows, err := tx.QueryContext(ctx, `SELECT id, name, limit_amount FROM categories WHERE owner_key = ? ORDER BY position, rowid`, b.owner())
	if err != nil {
		return domain.Settings{}, fmt.Errorf("query categories: %w", err)
	}
	defer crows.Close()
	s.Categories = []domain.Category{}
	for crows.Next() {
		var c domain.Category
		if err := crows.Scan(&c.ID, &c.Name, &c.Limit); err != nil {
			return domain.Settings{}, fmt.Errorf("scan category: %w", err)
		}
		s.Categories = append(s.Categories, c)
	}
	return s, crows.Err()
}

// saveSettings writes the fields present in patch, taking values from s.
func (b *Backend) saveSettings(ctx context.Context, tx *sql.Tx, s domain.Settings, patch domain.SettingsPatch) error {
	put := func(key, value string) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (owner_key, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (owner_key, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, b.owner(), key, value)
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		return nil
	}

	// The currency key marks the partition's settings as initialized, so it
	// is always written.
	if err := put(keyCurrency, s.Currency); err != nil {
		return err
	}
	if patch.UIMode.IsSet() {
		if err := put(keyUIMode, string(s.UIMode)); err != nil {
			return err
		}
	}
	if patch.CoupleMode.IsSet() {
		raw, err := json.Marshal(s.CoupleMode)
		if err != nil {
			return fmt.Errorf("couple mode: %w", err)
		}
		if err := put(keyCoupleMode, string(raw)); err != nil {
			return err
		}
	}

	if !patch.Categories.IsSet() {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE owner_key = ?`, b.owner()); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	for i, c := range domain.DedupeCategories(s.Categories) {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO categories (id, owner_key, name, limit_amount, position) VALUES (?, ?, ?, ?, ?)`,
			c.ID, b.owner(), c.Name, c.Limit, i)
		if err != nil {
			return fmt.Errorf("insert category %q: %w", c.Name, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDate(d *civil.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

var _ remote.Backend = (*Backend)(nil)
