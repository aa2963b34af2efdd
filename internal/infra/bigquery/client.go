// Package bigquery is the cloud remote.Backend. Rows of every session share
// one dataset and are filtered by the session's partition key.
//
// All writes go through DML. Rows inserted with the streaming API cannot be
// updated or deleted while they sit in the streaming buffer, and goals and
// bills are updated right after creation.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/twocents/internal/remote"
)

const (
	transactionsTable = "transactions"
	goalsTable        = "goals"
	billsTable        = "recurring_bills"
	settingsTable     = "settings"
)

// Client holds a shared BigQuery client for one dataset.
type Client struct {
	bq      *bigquery.Client
	project string
	dataset string
	log     zerolog.Logger
}

// New creates a client for project and dataset.
func New(ctx context.Context, project, dataset string, log zerolog.Logger) (*Client, error) {
	bq, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("New: creating client: %w", err)
	}
	return &Client{
		bq:      bq,
		project: project,
		dataset: dataset,
		log:     log.With().Str("component", "bigquery").Str("dataset", dataset).Logger(),
	}, nil
}

// Close closes the BigQuery client connection.
func (c *Client) Close() error {
	if c.bq != nil {
		return c.bq.Close()
	}
	return nil
}

// Backend returns a view of the dataset scoped to the session.
func (c *Client) Backend(s remote.Session) *Backend {
	return &Backend{c: c, session: s}
}

// Factory adapts c to remote.Factory.
func (c *Client) Factory() remote.Factory {
	return func(s remote.Session) remote.Backend {
		return c.Backend(s)
	}
}

// table returns the quoted, fully qualified table name.
func (c *Client) table(name string) string {
	return tableRef(c.project, c.dataset, name)
}

func tableRef(project, dataset, table string) string {
	return "`" + project + "." + dataset + "." + table + "`"
}

// exec runs a DML or DDL statement and waits for it.
func (c *Client) exec(ctx context.Context, sql string, params ...bigquery.QueryParameter) error {
	q := c.bq.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}

// read runs a query and collects its rows.
func read[T any](ctx context.Context, c *Client, sql string, params ...bigquery.QueryParameter) ([]T, error) {
	q := c.bq.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var rows []T
	for {
		var r T
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// isAlreadyExists reports whether err is the API's 409 Conflict.
func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

// Backend implements remote.Backend for one session.
type Backend struct {
	c       *Client
	session remote.Session
}

// Close implements remote.Backend. The BigQuery client is owned by Client.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) owner() bigquery.QueryParameter {
	return bigquery.QueryParameter{Name: "owner_key", Value: b.session.PartitionKey()}
}

var _ remote.Backend = (*Backend)(nil)
