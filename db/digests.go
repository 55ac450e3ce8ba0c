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

var digestColumns = []string{"id", "user_id", "type", "content", "metadata", "created_at"}

func scanDigests(rows *sql.Rows) ([]models.Digest, error) {
	defer rows.Close()

	digests := []models.Digest{}
	for rows.Next() {
		var digest models.Digest
		var userId sql.NullInt64
		if err := rows.Scan(&digest.Id, &userId, &digest.Type, &digest.Content, &digest.Metadata, &digest.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		if userId.Valid {
			digest.UserId = &userId.Int64
		}
		digests = append(digests, digest)
	}
	return digests, rows.Err()
}

func (d *DB) ListDigests(ctx context.Context, digestType string, limit, offset int) ([]models.Digest, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(digestColumns...).From("digests")
	if digestType != "" {
		sb.Where(sb.Equal("type", digestType))
	}
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit).Offset(offset)

	query, args := sb.Build()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return scanDigests(rows)
}

func (d *DB) GetDigest(ctx context.Context, id int64) (*models.Digest, error) {
	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select(digestColumns...).From("digests").Where(sb.Equal("id", id)).Build()

	var digest models.Digest
	var userId sql.NullInt64
	err := d.db.QueryRowContext(ctx, query, args...).
		Scan(&digest.Id, &userId, &digest.Type, &digest.Content, &digest.Metadata, &digest.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}
	if userId.Valid {
		digest.UserId = &userId.Int64
	}
	return &digest, nil
}

// CreateDigest inserts an immutable digest row. CreatedAt is optional; the
// store defaults it to now.
func (d *DB) CreateDigest(ctx context.Context, digest models.Digest) (int64, error) {
	metadata := digest.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("digests")
	if digest.CreatedAt != "" {
		ib.Cols("user_id", "type", "content", "metadata", "created_at").
			Values(nullableId(digest.UserId), digest.Type, digest.Content, metadata, digest.CreatedAt)
	} else {
		ib.Cols("user_id", "type", "content", "metadata").
			Values(nullableId(digest.UserId), digest.Type, digest.Content, metadata)
	}

	query, args := ib.Build()
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"digest": id,
		"type":   digest.Type,
	}).Info("Created digest")

	return id, nil
}

func nullableId(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// ListDigestsByUser returns the user's digests plus global (unowned) ones,
// newest first, for feed rendering.
func (d *DB) ListDigestsByUser(ctx context.Context, userId int64, digestType string, limit int, since string) ([]models.Digest, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(digestColumns...).From("digests")
	sb.Where(sb.Or(sb.Equal("user_id", userId), sb.IsNull("user_id")))
	if digestType != "" {
		sb.Where(sb.Equal("type", digestType))
	}
	if since != "" {
		sb.Where(sb.GreaterThan("created_at", since))
	}
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit)

	query, args := sb.Build()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return scanDigests(rows)
}

func (d *DB) CountDigestsByUser(ctx context.Context, userId int64, digestType string) (int64, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("count(*)").From("digests")
	sb.Where(sb.Or(sb.Equal("user_id", userId), sb.IsNull("user_id")))
	if digestType != "" {
		sb.Where(sb.Equal("type", digestType))
	}

	query, args := sb.Build()
	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query error: %w", err)
	}
	return count, nil
}

// GetDigestCountPerTime returns digest counts bucketed by hour, day or week.
func (d *DB) GetDigestCountPerTime(ctx context.Context, digestType string, timeAgg string) ([]models.DigestsAggregatedByTime, error) {
	var sqlFormat string
	switch timeAgg {
	case "day":
		sqlFormat = `STRFTIME('%Y-%m-%d', created_at)`
	case "week":
		sqlFormat = `STRFTIME('%Y-%W', created_at)`
	default:
		sqlFormat = `STRFTIME('%Y-%m-%d-%H', created_at)`
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(sqlFormat, "count(*) as count").From("digests")
	if digestType != "" {
		sb.Where(sb.Equal("type", digestType))
	}
	sb.GroupBy(sqlFormat)
	sb.OrderBy("created_at").Asc()

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []models.DigestsAggregatedByTime
	for rows.Next() {
		var bucket models.DigestsAggregatedByTime
		if err := rows.Scan(&bucket.Time, &bucket.Count); err != nil {
			continue // Skip this row
		}
		counts = append(counts, bucket)
	}

	return counts, rows.Err()
}
