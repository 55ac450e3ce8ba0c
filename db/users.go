package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"clawfeed/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

var userColumns = []string{"id", "email", "name", "avatar", "slug", "is_admin"}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.Id, &user.Email, &user.Name, &user.Avatar, &user.Slug, &user.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}
	return &user, nil
}

// UpsertUser creates or refreshes a user row keyed by the Google account id.
// New users get a unique URL-safe slug derived from their email.
func (d *DB) UpsertUser(ctx context.Context, googleId, email, name, avatar string) (*models.User, error) {
	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select(userColumns...).From("users").Where(sb.Equal("google_id", googleId)).Build()

	existing, err := scanUser(d.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	if existing != nil {
		ub := sqlbuilder.NewUpdateBuilder()
		query, args := ub.Update("users").
			Set(ub.Assign("email", email), ub.Assign("name", name), ub.Assign("avatar", avatar)).
			Where(ub.Equal("google_id", googleId)).
			Build()
		if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("update error: %w", err)
		}
		existing.Email = email
		existing.Name = name
		existing.Avatar = avatar
		return existing, nil
	}

	slug, err := d.uniqueUserSlug(ctx, email, name)
	if err != nil {
		return nil, err
	}

	ib := sqlbuilder.NewInsertBuilder()
	query, args = ib.InsertInto("users").
		Cols("google_id", "email", "name", "avatar", "slug").
		Values(googleId, email, name, avatar, slug).
		Build()
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user": id,
		"slug": slug,
	}).Info("Created user")

	return &models.User{Id: id, Email: email, Name: name, Avatar: avatar, Slug: slug}, nil
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify collapses a display string into a lowercase URL-safe slug.
func Slugify(s string) string {
	slug := nonSlugRe.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 50 {
		slug = strings.Trim(slug[:50], "-")
	}
	return slug
}

func (d *DB) uniqueUserSlug(ctx context.Context, email, name string) (string, error) {
	base := Slugify(strings.SplitN(email, "@", 2)[0])
	if base == "" {
		base = Slugify(name)
	}
	if base == "" {
		base = "user"
	}

	candidate := base
	for i := 1; ; i++ {
		existing, err := d.GetUserBySlug(ctx, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (d *DB) GetUserBySlug(ctx context.Context, slug string) (*models.User, error) {
	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select(userColumns...).From("users").Where(sb.Equal("slug", slug)).Build()
	return scanUser(d.db.QueryRowContext(ctx, query, args...))
}

// Sessions

func (d *DB) CreateSession(ctx context.Context, session models.Session) error {
	ib := sqlbuilder.NewInsertBuilder()
	query, args := ib.InsertInto("sessions").
		Cols("id", "user_id", "expires_at").
		Values(session.Id, session.UserId, session.ExpiresAt).
		Build()
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

// GetSessionUser resolves a session id to its user, ignoring expired rows.
func (d *DB) GetSessionUser(ctx context.Context, sessionId string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, u.avatar, u.slug, u.is_admin
		FROM sessions s JOIN users u ON s.user_id = u.id
		WHERE s.id = ? AND s.expires_at > datetime('now')`, sessionId)
	return scanUser(row)
}

func (d *DB) DeleteSession(ctx context.Context, sessionId string) error {
	deleteSession := sqlbuilder.NewDeleteBuilder()
	query, args := deleteSession.DeleteFrom("sessions").Where(deleteSession.Equal("id", sessionId)).Build()
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}
