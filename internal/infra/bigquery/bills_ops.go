package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
)

const billColumns = `bill_id, household_id, name, amount, due_day, last_paid, linked_goal_id, category`

// ListBills implements remote.BillClient.
func (b *Backend) ListBills(ctx context.Context) ([]domain.Bill, error) {
	rows, err := read[BillRow](ctx, b.c, `
		SELECT `+billColumns+`
		FROM `+b.c.table(billsTable)+`
		WHERE owner_key = @owner_key
		ORDER BY created_ts DESC
	`, b.owner())
	if err != nil {
		return nil, fmt.Errorf("ListBills: %w", err)
	}

	out := make([]domain.Bill, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// AddBill implements remote.BillClient.
func (b *Backend) AddBill(ctx context.Context, bill domain.Bill) (domain.Bill, error) {
	if bill.Name == "" {
		return domain.Bill{}, fmt.Errorf("AddBill: name is required: %w", remote.ErrInvalid)
	}
	bill.ID = uuid.NewString()
	bill.HouseholdID = b.session.HouseholdID

	r := billRow(bill)
	params := append(r.params(), b.owner(), now())
	err := b.c.exec(ctx, `
		INSERT INTO `+b.c.table(billsTable)+`
			(`+billColumns+`, owner_key, created_ts)
		VALUES (@bill_id, @household_id, @name, @amount, @due_day, @last_paid, @linked_goal_id, @category, @owner_key, @now)
	`, params...)
	if err != nil {
		return domain.Bill{}, fmt.Errorf("AddBill: %w", err)
	}
	return bill, nil
}

// UpdateBill implements remote.BillClient.
func (b *Backend) UpdateBill(ctx context.Context, id string, patch domain.BillPatch) error {
	rows, err := read[BillRow](ctx, b.c, `
		SELECT `+billColumns+`
		FROM `+b.c.table(billsTable)+`
		WHERE bill_id = @bill_id AND owner_key = @owner_key
	`, b.owner(), bigquery.QueryParameter{Name: "bill_id", Value: id})
	if err != nil {
		return fmt.Errorf("UpdateBill: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("UpdateBill: %s: %w", id, remote.ErrNotFound)
	}

	r := billRow(patch.Apply(rows[0].toDomain()))
	params := append(r.params(), b.owner())
	err = b.c.exec(ctx, `
		UPDATE `+b.c.table(billsTable)+`
		SET name = @name, amount = @amount, due_day = @due_day, last_paid = @last_paid,
			linked_goal_id = @linked_goal_id, category = @category
		WHERE bill_id = @bill_id AND owner_key = @owner_key
	`, params...)
	if err != nil {
		return fmt.Errorf("UpdateBill: %w", err)
	}
	return nil
}

// RemoveBill implements remote.BillClient.
func (b *Backend) RemoveBill(ctx context.Context, id string) error {
	err := b.c.exec(ctx, `
		DELETE FROM `+b.c.table(billsTable)+`
		WHERE bill_id = @bill_id AND owner_key = @owner_key
	`, b.owner(), bigquery.QueryParameter{Name: "bill_id", Value: id})
	if err != nil {
		return fmt.Errorf("RemoveBill: %w", err)
	}
	return nil
}
