package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clawfeed/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

var markColumns = []string{"id", "user_id", "url", "title", "note", "status", "created_at"}

func (d *DB) ListMarks(ctx context.Context, userId int64, status string) ([]models.Mark, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(markColumns...).From("marks").Where(sb.Equal("user_id", userId))
	if status != "" {
		sb.Where(sb.Equal("status", status))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	marks := []models.Mark{}
	for rows.Next() {
		var mark models.Mark
		if err := rows.Scan(&mark.Id, &mark.UserId, &mark.Url, &mark.Title, &mark.Note, &mark.Status, &mark.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		marks = append(marks, mark)
	}
	return marks, rows.Err()
}

// CreateMark inserts a mark unless the user already marked the same URL, in
// which case the existing id comes back with duplicate set.
func (d *DB) CreateMark(ctx context.Context, mark models.Mark) (int64, bool, error) {
	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select("id").From("marks").
		Where(sb.Equal("url", mark.Url), sb.Equal("user_id", mark.UserId)).
		Build()

	var existingId int64
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&existingId)
	if err == nil {
		return existingId, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("query error: %w", err)
	}

	ib := sqlbuilder.NewInsertBuilder()
	query, args = ib.InsertInto("marks").
		Cols("url", "title", "note", "user_id").
		Values(mark.Url, mark.Title, mark.Note, mark.UserId).
		Build()
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, false, fmt.Errorf("insert error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

func (d *DB) DeleteMark(ctx context.Context, id, userId int64) error {
	deleteMark := sqlbuilder.NewDeleteBuilder()
	query, args := deleteMark.DeleteFrom("marks").
		Where(deleteMark.Equal("id", id), deleteMark.Equal("user_id", userId)).
		Build()
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}
