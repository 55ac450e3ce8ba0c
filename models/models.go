package models

import "encoding/json"

// Source types a URL can resolve to.
const (
	SourceTwitterFeed    = "twitter_feed"
	SourceTwitterList    = "twitter_list"
	SourceReddit         = "reddit"
	SourceGithubTrending = "github_trending"
	SourceHackerNews     = "hackernews"
	SourceRss            = "rss"
	SourceDigestFeed     = "digest_feed"
	SourceWebsite        = "website"
)

// Digest types, one per cadence.
const (
	Digest4h      = "4h"
	DigestDaily   = "daily"
	DigestWeekly  = "weekly"
	DigestMonthly = "monthly"
)

type User struct {
	Id      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
	Slug    string `json:"slug"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

type Session struct {
	Id        string
	UserId    int64
	ExpiresAt string
}

// Digest is immutable once created. CreatedAt is kept as the raw store
// string; timestamps without an offset are assumed to be UTC+8 downstream.
type Digest struct {
	Id        int64  `json:"id"`
	UserId    *int64 `json:"user_id,omitempty"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt string `json:"created_at"`
}

type Mark struct {
	Id        int64  `json:"id"`
	UserId    int64  `json:"user_id"`
	Url       string `json:"url"`
	Title     string `json:"title"`
	Note      string `json:"note"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Source is a classified, typed content origin a user can subscribe to.
// Config holds canonical JSON; identity for dedup is (Type, Config).
type Source struct {
	Id        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Config    string `json:"config"`
	IsPublic  bool   `json:"is_public"`
	IsActive  bool   `json:"is_active"`
	IsDeleted bool   `json:"is_deleted"`
	CreatedBy int64  `json:"created_by"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SubscribedSource is a source row joined with a user's subscription.
type SubscribedSource struct {
	Source
	SourceDeleted bool `json:"sourceDeleted"`
}

// Pack bundles source templates installable in one action. The embedded
// templates are specs, not references; installing materializes Source rows.
type Pack struct {
	Id           int64  `json:"id"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	SourcesJSON  string `json:"-"`
	CreatedBy    int64  `json:"created_by"`
	IsPublic     bool   `json:"is_public"`
	InstallCount int64  `json:"install_count"`
	CreatedAt    string `json:"created_at"`
}

// PackSource is one source template inside a pack. Config may be either a
// JSON object or a pre-encoded JSON string; the installer normalizes both.
type PackSource struct {
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// Sources decodes the embedded template list.
func (p *Pack) Sources() ([]PackSource, error) {
	raw := p.SourcesJSON
	if raw == "" {
		raw = "[]"
	}
	var sources []PackSource
	if err := json.Unmarshal([]byte(raw), &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

type PreviewItem struct {
	Title string `json:"title"`
	Url   string `json:"url"`
}

// ClassificationResult is ephemeral; it is returned to the caller and never
// persisted as-is.
type ClassificationResult struct {
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Config  map[string]any `json:"config"`
	Icon    string         `json:"icon"`
	Preview []PreviewItem  `json:"preview,omitempty"`
}

type DigestsAggregatedByTime struct {
	Time  string `json:"time"`
	Count int64  `json:"count"`
}
