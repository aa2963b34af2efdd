package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/dvloznov/twocents/internal/domain"
)

// ListTransactions implements remote.TransactionClient.
func (b *Backend) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := read[TransactionRow](ctx, b.c, `
		SELECT transaction_id, household_id, transaction_date, amount, category, note, who
		FROM `+b.c.table(transactionsTable)+`
		WHERE owner_key = @owner_key
		ORDER BY transaction_date DESC, created_ts DESC
	`, b.owner())
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}

	out := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// AddTransaction implements remote.TransactionClient.
func (b *Backend) AddTransaction(ctx context.Context, t domain.NewTransaction) (domain.Transaction, error) {
	tx := t.WithID(uuid.NewString(), b.session.HouseholdID)

	err := b.c.exec(ctx, `
		INSERT INTO `+b.c.table(transactionsTable)+`
			(transaction_id, owner_key, household_id, transaction_date, amount, category, note, who, created_ts)
		VALUES (@transaction_id, @owner_key, @household_id, @transaction_date, @amount, @category, @note, @who, @now)
	`,
		b.owner(),
		now(),
		bigquery.QueryParameter{Name: "transaction_id", Value: tx.ID},
		bigquery.QueryParameter{Name: "household_id", Value: nullString(tx.HouseholdID)},
		bigquery.QueryParameter{Name: "transaction_date", Value: tx.Date},
		bigquery.QueryParameter{Name: "amount", Value: tx.Amount},
		bigquery.QueryParameter{Name: "category", Value: nullString(tx.Category)},
		bigquery.QueryParameter{Name: "note", Value: nullString(tx.Note)},
		bigquery.QueryParameter{Name: "who", Value: nullString(tx.Who)},
	)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: %w", err)
	}
	return tx, nil
}

// RemoveTransaction implements remote.TransactionClient.
func (b *Backend) RemoveTransaction(ctx context.Context, id string) error {
	err := b.c.exec(ctx, `
		DELETE FROM `+b.c.table(transactionsTable)+`
		WHERE transaction_id = @transaction_id AND owner_key = @owner_key
	`, b.owner(), bigquery.QueryParameter{Name: "transaction_id", Value: id})
	if err != nil {
		return fmt.Errorf("RemoveTransaction: %w", err)
	}
	return nil
}

// ClearTransactions implements remote.TransactionClient.
func (b *Backend) ClearTransactions(ctx context.Context) error {
	err := b.c.exec(ctx, `DELETE FROM `+b.c.table(transactionsTable)+` WHERE owner_key = @owner_key`, b.owner())
	if err != nil {
		return fmt.Errorf("ClearTransactions: %w", err)
	}
	return nil
}
