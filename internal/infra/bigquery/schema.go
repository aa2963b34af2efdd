package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// ddl lists the tables of the dataset. Linked lists are REPEATED columns and
// the settings singleton stores categories and couple mode as JSON text.
var ddl = map[string]string{
	transactionsTable: `(
		transaction_id STRING NOT NULL,
		owner_key      STRING NOT NULL,
		household_id   STRING,
		transaction_date DATE NOT NULL,
		amount         FLOAT64 NOT NULL,
		category       STRING,
		note           STRING,
		who            STRING,
		created_ts     TIMESTAMP NOT NULL
	)`,
	goalsTable: `(
		goal_id           STRING NOT NULL,
		owner_key         STRING NOT NULL,
		household_id      STRING,
		name              STRING NOT NULL,
		current           FLOAT64 NOT NULL,
		target            FLOAT64 NOT NULL,
		category          STRING NOT NULL,
		target_date       DATE,
		color             STRING NOT NULL,
		is_debt           BOOL NOT NULL,
		original_debt     FLOAT64,
		completed_at      TIMESTAMP,
		linked_categories ARRAY<STRING>,
		linked_bill_names ARRAY<STRING>,
		created_ts        TIMESTAMP NOT NULL
	)`,
	billsTable: `(
		bill_id        STRING NOT NULL,
		owner_key      STRING NOT NULL,
		household_id   STRING,
		name           STRING NOT NULL,
		amount         FLOAT64 NOT NULL,
		due_day        INT64 NOT NULL,
		last_paid      DATE,
		linked_goal_id STRING,
		category       STRING,
		created_ts     TIMESTAMP NOT NULL
	)`,
	settingsTable: `(
		owner_key   STRING NOT NULL,
		currency    STRING NOT NULL,
		ui_mode     STRING NOT NULL,
		categories  STRING NOT NULL,
		couple_mode STRING NOT NULL,
		updated_ts  TIMESTAMP NOT NULL
	)`,
}

// EnsureSchema creates the dataset and any missing table.
func (c *Client) EnsureSchema(ctx context.Context) error {
	err := c.bq.DatasetInProject(c.project, c.dataset).Create(ctx, &bigquery.DatasetMetadata{})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureSchema: create dataset: %w", err)
	}

	for _, name := range []string{transactionsTable, goalsTable, billsTable, settingsTable} {
		stmt := "CREATE TABLE IF NOT EXISTS " + c.table(name) + " " + ddl[name]
		if err := c.exec(ctx, stmt); err != nil {
			return fmt.Errorf("EnsureSchema: %s: %w", name, err)
		}
	}

	c.log.Info().Msg("BigQuery schema ready")
	return nil
}
