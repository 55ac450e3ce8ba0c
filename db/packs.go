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

var packColumns = []string{
	"id", "slug", "name", "description", "sources_json",
	"created_by", "is_public", "install_count", "created_at",
}

func scanPack(scan func(dest ...any) error) (*models.Pack, error) {
	var pack models.Pack
	var createdBy sql.NullInt64
	err := scan(&pack.Id, &pack.Slug, &pack.Name, &pack.Description, &pack.SourcesJSON,
		&createdBy, &pack.IsPublic, &pack.InstallCount, &pack.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}
	pack.CreatedBy = createdBy.Int64
	return &pack, nil
}

func (d *DB) CreatePack(ctx context.Context, pack models.Pack) (int64, error) {
	sourcesJSON := pack.SourcesJSON
	if sourcesJSON == "" {
		sourcesJSON = "[]"
	}

	ib := sqlbuilder.NewInsertBuilder()
	query, args := ib.InsertInto("packs").
		Cols("slug", "name", "description", "sources_json", "created_by", "is_public").
		Values(pack.Slug, pack.Name, pack.Description, sourcesJSON, nullableRef(pack.CreatedBy), pack.IsPublic).
		Build()
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"pack": id,
		"slug": pack.Slug,
	}).Info("Created pack")

	return id, nil
}

func (d *DB) GetPack(ctx context.Context, id int64) (*models.Pack, error) {
	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select(packColumns...).From("packs").Where(sb.Equal("id", id)).Build()
	return scanPack(d.db.QueryRowContext(ctx, query, args...).Scan)
}

func (d *DB) GetPackBySlug(ctx context.Context, slug string) (*models.Pack, error) {
	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select(packColumns...).From("packs").Where(sb.Equal("slug", slug)).Build()
	return scanPack(d.db.QueryRowContext(ctx, query, args...).Scan)
}

// ListPacks returns public packs plus, when userId is set, the user's own.
func (d *DB) ListPacks(ctx context.Context, userId int64) ([]models.Pack, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(packColumns...).From("packs")
	if userId != 0 {
		sb.Where(sb.Or(sb.Equal("is_public", 1), sb.Equal("created_by", userId)))
	} else {
		sb.Where(sb.Equal("is_public", 1))
	}
	sb.OrderBy("install_count").Desc()

	query, args := sb.Build()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	packs := []models.Pack{}
	for rows.Next() {
		pack, err := scanPack(rows.Scan)
		if err != nil {
			return nil, err
		}
		packs = append(packs, *pack)
	}
	return packs, rows.Err()
}

func (d *DB) DeletePack(ctx context.Context, id int64) error {
	deletePack := sqlbuilder.NewDeleteBuilder()
	query, args := deletePack.DeleteFrom("packs").Where(deletePack.Equal("id", id)).Build()
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

func (d *DB) IncrementPackInstall(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx,
		"UPDATE packs SET install_count = install_count + 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	return nil
}
