package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
)

const goalColumns = `goal_id, household_id, name, current, target, category, target_date, color,
	is_debt, original_debt, completed_at, linked_categories, linked_bill_names`

// ListGoals implements remote.GoalClient.
func (b *Backend) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	rows, err := read[GoalRow](ctx, b.c, `
		SELECT `+goalColumns+`
		FROM `+b.c.table(goalsTable)+`
		WHERE owner_key = @owner_key
		ORDER BY created_ts DESC
	`, b.owner())
	if err != nil {
		return nil, fmt.Errorf("ListGoals: %w", err)
	}

	out := make([]domain.Goal, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (b *Backend) findGoal(ctx context.Context, id string) (GoalRow, error) {
	rows, err := read[GoalRow](ctx, b.c, `
		SELECT `+goalColumns+`
		FROM `+b.c.table(goalsTable)+`
		WHERE goal_id = @goal_id AND owner_key = @owner_key
	`, b.owner(), bigquery.QueryParameter{Name: "goal_id", Value: id})
	if err != nil {
		return GoalRow{}, err
	}
	if len(rows) == 0 {
		return GoalRow{}, fmt.Errorf("%s: %w", id, remote.ErrNotFound)
	}
	return rows[0], nil
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

	r := goalRow(g)
	params := append(r.params(), b.owner(), now())
	err := b.c.exec(ctx, `
		INSERT INTO `+b.c.table(goalsTable)+`
			(`+goalColumns+`, owner_key, created_ts)
		VALUES (@goal_id, @household_id, @name, @current, @target, @category, @target_date, @color,
			@is_debt, @original_debt, @completed_at, @linked_categories, @linked_bill_names, @owner_key, @now)
	`, params...)
	if err != nil {
		return domain.Goal{}, fmt.Errorf("AddGoal: %w", err)
	}
	return r.toDomain(), nil
}

// UpdateGoal implements remote.GoalClient. The stored row is read, patched
// and written back whole.
func (b *Backend) UpdateGoal(ctx context.Context, id string, patch domain.GoalPatch) error {
	cur, err := b.findGoal(ctx, id)
	if err != nil {
		return fmt.Errorf("UpdateGoal: %w", err)
	}

	r := goalRow(patch.Apply(cur.toDomain()))
	params := append(r.params(), b.owner())
	err = b.c.exec(ctx, `
		UPDATE `+b.c.table(goalsTable)+`
		SET name = @name, current = @current, target = @target, category = @category,
			target_date = @target_date, color = @color, is_debt = @is_debt,
			original_debt = @original_debt, completed_at = @completed_at,
			linked_categories = @linked_categories, linked_bill_names = @linked_bill_names
		WHERE goal_id = @goal_id AND owner_key = @owner_key
	`, params...)
	if err != nil {
		return fmt.Errorf("UpdateGoal: %w", err)
	}
	return nil
}

// RemoveGoal implements remote.GoalClient. Bills linked to the goal are
// unlinked first.
func (b *Backend) RemoveGoal(ctx context.Context, id string) error {
	idParam := bigquery.QueryParameter{Name: "goal_id", Value: id}

	err := b.c.exec(ctx, `
		UPDATE `+b.c.table(billsTable)+`
		SET linked_goal_id = NULL
		WHERE linked_goal_id = @goal_id AND owner_key = @owner_key
	`, b.owner(), idParam)
	if err != nil {
		return fmt.Errorf("RemoveGoal: unlink bills: %w", err)
	}

	err = b.c.exec(ctx, `
		DELETE FROM `+b.c.table(goalsTable)+`
		WHERE goal_id = @goal_id AND owner_key = @owner_key
	`, b.owner(), idParam)
	if err != nil {
		return fmt.Errorf("RemoveGoal: %w", err)
	}
	return nil
}
