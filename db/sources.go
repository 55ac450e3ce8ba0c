package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clawfeed/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

var sourceColumns = []string{
	"id", "name", "type", "config", "is_public", "is_active", "is_deleted",
	"created_by", "created_at", "updated_at",
}

func scanSource(scan func(dest ...any) error) (*models.Source, error) {
	var source models.Source
	var createdBy sql.NullInt64
	err := scan(&source.Id, &source.Name, &source.Type, &source.Config,
		&source.IsPublic, &source.IsActive, &source.IsDeleted,
		&createdBy, &source.CreatedAt, &source.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}
	source.CreatedBy = createdBy.Int64
	return &source, nil
}

// ListSources returns non-deleted sources visible to the user: their own
// plus public ones. A zero userId lists public sources only.
func (d *DB) ListSources(ctx context.Context, userId int64) ([]models.Source, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(sourceColumns...).From("sources")
	sb.Where(sb.Equal("is_deleted", 0))
	if userId != 0 {
		sb.Where(sb.Or(sb.Equal("created_by", userId), sb.Equal("is_public", 1)))
	} else {
		sb.Where(sb.Equal("is_public", 1))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	sources := []models.Source{}
	for rows.Next() {
		source, err := scanSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *source)
	}
	return sources, rows.Err()
}

func (d *DB) GetSource(ctx context.Context, id int64) (*models.Source, error) {
	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select(sourceColumns...).From("sources").Where(sb.Equal("id", id)).Build()
	return scanSource(d.db.QueryRowContext(ctx, query, args...).Scan)
}

// GetSourceByTypeConfig looks a source up by its dedup identity. Soft-deleted
// rows are included on purpose so callers can refuse to resurrect them.
func (d *DB) GetSourceByTypeConfig(ctx context.Context, sourceType, config string) (*models.Source, error) {
	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select(sourceColumns...).From("sources").
		Where(sb.Equal("type", sourceType), sb.Equal("config", config)).
		OrderBy("id").Limit(1).
		Build()
	return scanSource(d.db.QueryRowContext(ctx, query, args...).Scan)
}

// CreateSource inserts a source and subscribes its creator in the same
// transaction.
func (d *DB) CreateSource(ctx context.Context, source models.Source) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin error: %w", err)
	}
	defer tx.Rollback()

	config := source.Config
	if config == "" {
		config = "{}"
	}

	ib := sqlbuilder.NewInsertBuilder()
	query, args := ib.InsertInto("sources").
		Cols("name", "type", "config", "is_public", "is_active", "created_by").
		Values(source.Name, source.Type, config, source.IsPublic, true, nullableRef(source.CreatedBy)).
		Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if source.CreatedBy != 0 {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO subscriptions (user_id, source_id) VALUES (?, ?)",
			source.CreatedBy, id); err != nil {
			return 0, fmt.Errorf("subscribe error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit error: %w", err)
	}

	log.WithFields(log.Fields{
		"source": id,
		"type":   source.Type,
		"name":   source.Name,
	}).Info("Created source")

	return id, nil
}

// UpdateSource applies a partial update limited to the editable columns.
func (d *DB) UpdateSource(ctx context.Context, id int64, patch map[string]any) error {
	allowed := map[string]bool{
		"name": true, "type": true, "config": true, "is_active": true, "is_public": true,
	}

	ub := sqlbuilder.NewUpdateBuilder()
	assignments := []string{}
	for col, value := range patch {
		if allowed[col] {
			assignments = append(assignments, ub.Assign(col, value))
		}
	}
	if len(assignments) == 0 {
		return nil
	}
	assignments = append(assignments, "updated_at = datetime('now')")

	query, args := ub.Update("sources").Set(assignments...).Where(ub.Equal("id", id)).Build()
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	return nil
}

// SoftDeleteSource flags the source as deleted and removes its
// subscriptions. The row stays behind so pack installs cannot resurrect it.
func (d *DB) SoftDeleteSource(ctx context.Context, id int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin error: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE sources SET is_deleted = 1, updated_at = datetime('now') WHERE id = ?", id); err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM subscriptions WHERE source_id = ?", id); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit error: %w", err)
	}

	log.WithFields(log.Fields{
		"source": id,
	}).Info("Soft-deleted source")

	return nil
}

// Subscriptions

func (d *DB) Subscribe(ctx context.Context, userId, sourceId int64) error {
	if _, err := d.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO subscriptions (user_id, source_id) VALUES (?, ?)",
		userId, sourceId); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func (d *DB) IsSubscribed(ctx context.Context, userId, sourceId int64) (bool, error) {
	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select("count(*)").From("subscriptions").
		Where(sb.Equal("user_id", userId), sb.Equal("source_id", sourceId)).
		Build()

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("query error: %w", err)
	}
	return count > 0, nil
}

// BulkSubscribe subscribes the user to every listed source, returning how
// many subscriptions were actually added.
func (d *DB) BulkSubscribe(ctx context.Context, userId int64, sourceIds []int64) (int, error) {
	added := 0
	for _, sourceId := range sourceIds {
		res, err := d.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO subscriptions (user_id, source_id) VALUES (?, ?)",
			userId, sourceId)
		if err != nil {
			return added, fmt.Errorf("insert error: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added++
		}
	}
	return added, nil
}

func (d *DB) Unsubscribe(ctx context.Context, userId, sourceId int64) error {
	deleteSub := sqlbuilder.NewDeleteBuilder()
	query, args := deleteSub.DeleteFrom("subscriptions").
		Where(deleteSub.Equal("user_id", userId), deleteSub.Equal("source_id", sourceId)).
		Build()
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

// ListSubscriptions returns the user's subscribed sources, including
// soft-deleted ones so the caller can flag them.
func (d *DB) ListSubscriptions(ctx context.Context, userId int64) ([]models.SubscribedSource, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.type, s.config, s.is_public, s.is_active, s.is_deleted,
		       s.created_by, s.created_at, s.updated_at
		FROM sources s
		JOIN subscriptions sub ON sub.source_id = s.id
		WHERE sub.user_id = ?
		ORDER BY sub.created_at DESC`, userId)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	subscriptions := []models.SubscribedSource{}
	for rows.Next() {
		source, err := scanSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, models.SubscribedSource{
			Source:        *source,
			SourceDeleted: source.IsDeleted,
		})
	}
	return subscriptions, rows.Err()
}
