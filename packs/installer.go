// Package packs turns a pack's source templates into persisted sources and
// subscriptions, idempotently.
package packs

import (
	"context"
	"encoding/json"
	"fmt"

	"clawfeed/models"

	log "github.com/sirupsen/logrus"
)

// Store is the persistence collaborator the installer drives. Lookups span
// soft-deleted rows; CreateSource subscribes the creator automatically.
type Store interface {
	GetSourceByTypeConfig(ctx context.Context, sourceType, config string) (*models.Source, error)
	CreateSource(ctx context.Context, source models.Source) (int64, error)
	Subscribe(ctx context.Context, userId, sourceId int64) error
	IsSubscribed(ctx context.Context, userId, sourceId int64) (bool, error)
	IncrementPackInstall(ctx context.Context, packId int64) error
}

type Result struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

type Installer struct {
	store Store
}

func NewInstaller(store Store) *Installer {
	return &Installer{store: store}
}

// Install processes the pack's templates in declared order. The loop is
// sequential on purpose: a source appearing twice in one pack must dedup
// against the row created earlier in the same loop. Per-template lookup
// failures are soft and count as skipped; store write failures abort the
// whole install. Always: Added + Skipped == len(templates).
func (i *Installer) Install(ctx context.Context, pack *models.Pack, userId int64) (*Result, error) {
	templates, err := pack.Sources()
	if err != nil {
		return nil, fmt.Errorf("invalid pack sources: %w", err)
	}

	result := &Result{}
	for _, tpl := range templates {
		config, err := NormalizeConfig(tpl.Config)
		if err != nil {
			log.WithFields(log.Fields{
				"pack": pack.Slug,
				"name": tpl.Name,
			}).Warn("Skipping template with invalid config")
			result.Skipped++
			continue
		}

		existing, err := i.store.GetSourceByTypeConfig(ctx, tpl.Type, config)
		if err != nil {
			log.WithFields(log.Fields{
				"pack":  pack.Slug,
				"name":  tpl.Name,
				"error": err,
			}).Warn("Skipping template after failed dedup lookup")
			result.Skipped++
			continue
		}

		if existing != nil {
			if existing.IsDeleted {
				// Never resurrect a source a user removed on purpose.
				result.Skipped++
				continue
			}
			subscribed, err := i.store.IsSubscribed(ctx, userId, existing.Id)
			if err != nil {
				result.Skipped++
				continue
			}
			if subscribed {
				result.Skipped++
				continue
			}
			if err := i.store.Subscribe(ctx, userId, existing.Id); err != nil {
				return nil, fmt.Errorf("subscribe failed: %w", err)
			}
			result.Added++
			continue
		}

		_, err = i.store.CreateSource(ctx, models.Source{
			Name:      tpl.Name,
			Type:      tpl.Type,
			Config:    config,
			IsPublic:  false,
			IsActive:  true,
			CreatedBy: userId,
		})
		if err != nil {
			return nil, fmt.Errorf("create source failed: %w", err)
		}
		result.Added++
	}

	// Bumped once per install call, regardless of per-template outcomes.
	if err := i.store.IncrementPackInstall(ctx, pack.Id); err != nil {
		return nil, fmt.Errorf("increment install count failed: %w", err)
	}

	log.WithFields(log.Fields{
		"pack":    pack.Slug,
		"user":    userId,
		"added":   result.Added,
		"skipped": result.Skipped,
	}).Info("Installed pack")

	return result, nil
}

// NormalizeConfig canonicalizes a template config for dedup lookup. A JSON
// string literal passes through as its value; anything else re-marshals,
// which sorts object keys into a canonical form.
func NormalizeConfig(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
