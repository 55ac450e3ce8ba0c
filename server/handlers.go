package server

import (
	"encoding/json"
	"strconv"
	"strings"

	"clawfeed/db"
	"clawfeed/feeds"
	"clawfeed/models"
	"clawfeed/packs"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// getFeed serves a user's digest feed in one of three formats selected by
// the slug extension: .json (JSON Feed 1.1), .rss (RSS 2.0) or bare (API).
func (a *api) getFeed(c *fiber.Ctx) error {
	slug := c.Params("slug")
	format := "api"
	switch {
	case strings.HasSuffix(slug, ".json"):
		slug, format = strings.TrimSuffix(slug, ".json"), "json"
	case strings.HasSuffix(slug, ".rss"):
		slug, format = strings.TrimSuffix(slug, ".rss"), "rss"
	}

	user, err := a.store.GetUserBySlug(c.Context(), slug)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "lookup failed"})
	}
	if user == nil {
		return c.Status(404).JSON(fiber.Map{"error": "user not found"})
	}

	digestType := c.Query("type", models.Digest4h)
	limit := c.QueryInt("limit", 10)
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	since := c.Query("since")

	digests, err := a.store.ListDigestsByUser(c.Context(), user.Id, digestType, limit, since)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}

	baseURL := strings.TrimSuffix(a.config.BaseURL, "/")

	switch format {
	case "json":
		body, err := feeds.RenderJSON(*user, digests, baseURL)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "render failed"})
		}
		c.Set("Content-Type", feeds.ContentTypeJSONFeed)
		return c.Send(body)
	case "rss":
		c.Set("Content-Type", feeds.ContentTypeRSS)
		return c.Send(feeds.RenderRSS(*user, digests, baseURL))
	}

	total, err := a.store.CountDigestsByUser(c.Context(), user.Id, digestType)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	return c.JSON(fiber.Map{
		"user": fiber.Map{"name": user.Name, "slug": user.Slug},
		"digests": lo.Map(digests, func(d models.Digest, _ int) fiber.Map {
			return fiber.Map{"id": d.Id, "type": d.Type, "content": d.Content, "created_at": d.CreatedAt}
		}),
		"total": total,
	})
}

// Digests

func (a *api) listDigests(c *fiber.Ctx) error {
	digestType := c.Query("type")
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	digests, err := a.store.ListDigests(c.Context(), digestType, limit, offset)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	return c.JSON(digests)
}

func (a *api) getDigest(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}
	digest, err := a.store.GetDigest(c.Context(), int64(id))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	if digest == nil {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	return c.JSON(digest)
}

func (a *api) createDigest(c *fiber.Ctx) error {
	if !a.validAPIKey(c) {
		return c.Status(401).JSON(fiber.Map{"error": "invalid api key"})
	}

	var body struct {
		UserId    *int64          `json:"user_id"`
		Type      string          `json:"type"`
		Content   string          `json:"content"`
		Metadata  json.RawMessage `json:"metadata"`
		CreatedAt string          `json:"created_at"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if body.Type == "" || body.Content == "" {
		return c.Status(400).JSON(fiber.Map{"error": "type and content required"})
	}

	id, err := a.store.CreateDigest(c.Context(), models.Digest{
		UserId:    body.UserId,
		Type:      body.Type,
		Content:   body.Content,
		Metadata:  string(body.Metadata),
		CreatedAt: body.CreatedAt,
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "insert failed"})
	}
	return c.Status(201).JSON(fiber.Map{"id": id})
}

// Marks

func (a *api) listMarks(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "not authenticated"})
	}
	marks, err := a.store.ListMarks(c.Context(), user.Id, c.Query("status"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	return c.JSON(marks)
}

func (a *api) createMark(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "not authenticated"})
	}

	var body struct {
		Url   string `json:"url"`
		Title string `json:"title"`
		Note  string `json:"note"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if body.Url == "" {
		return c.Status(400).JSON(fiber.Map{"error": "invalid url"})
	}

	id, duplicate, err := a.store.CreateMark(c.Context(), models.Mark{
		UserId: user.Id,
		Url:    body.Url,
		Title:  body.Title,
		Note:   body.Note,
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "insert failed"})
	}
	return c.JSON(fiber.Map{"ok": true, "id": id, "duplicate": duplicate})
}

func (a *api) deleteMark(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "not authenticated"})
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}
	if err := a.store.DeleteMark(c.Context(), int64(id), user.Id); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// legacyMark accepts the old bookmarklet payload: a bare URL, query string
// stripped before dedup.
func (a *api) legacyMark(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "not authenticated"})
	}

	var body struct {
		Url string `json:"url"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	url := strings.SplitN(body.Url, "?", 2)[0]
	if url == "" {
		return c.Status(400).JSON(fiber.Map{"error": "invalid url"})
	}

	_, duplicate, err := a.store.CreateMark(c.Context(), models.Mark{UserId: user.Id, Url: url})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "insert failed"})
	}

	status := "marked"
	if duplicate {
		status = "already_marked"
	}
	return c.JSON(fiber.Map{"ok": true, "status": status})
}

func (a *api) legacyMarks(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "not authenticated"})
	}
	marks, err := a.store.ListMarks(c.Context(), user.Id, "")
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}

	pending := lo.Filter(marks, func(m models.Mark, _ int) bool {
		return m.Status == "pending"
	})
	return c.JSON(fiber.Map{
		"tweets": lo.Map(pending, func(m models.Mark, _ int) fiber.Map {
			return fiber.Map{"url": m.Url, "markedAt": m.CreatedAt}
		}),
		"history": lo.Map(marks, func(m models.Mark, _ int) fiber.Map {
			action := "mark"
			if m.Status == "processed" {
				action = "processed"
			}
			return fiber.Map{"action": action, "target": m.Url, "at": m.CreatedAt, "title": m.Title}
		}),
	})
}

// Subscriptions

func (a *api) listSubscriptions(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "not authenticated"})
	}
	subscriptions, err := a.store.ListSubscriptions(c.Context(), user.Id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	return c.JSON(subscriptions)
}

func (a *api) subscribe(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "not authenticated"})
	}

	var body struct {
		SourceId int64 `json:"sourceId"`
	}
	if err := c.BodyParser(&body); err != nil || body.SourceId == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "sourceId required"})
	}

	source, err := a.store.GetSource(c.Context(), body.SourceId)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "lookup failed"})
	}
	if source == nil {
		return c.Status(404).JSON(fiber.Map{"error": "source not found"})
	}

	if err := a.store.Subscribe(c.Context(), user.Id, body.SourceId); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "subscribe failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (a *api) bulkSubscribe(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "not authenticated"})
	}

	var body struct {
		SourceIds []int64 `json:"sourceIds"`
	}
	if err := c.BodyParser(&body); err != nil || body.SourceIds == nil {
		return c.Status(400).JSON(fiber.Map{"error": "sourceIds array required"})
	}

	added, err := a.store.BulkSubscribe(c.Context(), user.Id, body.SourceIds)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "subscribe failed"})
	}
	return c.JSON(fiber.Map{"ok": true, "added": added})
}

func (a *api) unsubscribe(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "not authenticated"})
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}
	if err := a.store.Unsubscribe(c.Context(), user.Id, int64(id)); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "unsubscribe failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Sources

func (a *api) resolveSource(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "login required"})
	}

	var body struct {
		Url string `json:"url"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	url := strings.TrimSpace(body.Url)
	if url == "" {
		return c.Status(400).JSON(fiber.Map{"error": "url required"})
	}

	result, err := a.classifier.Classify(c.Context(), url)
	if err != nil {
		return c.Status(422).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(result)
}

// sourceWithSubscribed decorates a source with the caller's subscription
// state for the listing endpoint.
type sourceWithSubscribed struct {
	models.Source
	Subscribed bool `json:"subscribed"`
}

func (a *api) listSources(c *fiber.Ctx) error {
	user := currentUser(c)

	var userId int64
	if user != nil {
		userId = user.Id
	}
	sources, err := a.store.ListSources(c.Context(), userId)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	if user == nil {
		return c.JSON(sources)
	}

	subscriptions, err := a.store.ListSubscriptions(c.Context(), user.Id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	subscribed := lo.SliceToMap(subscriptions, func(s models.SubscribedSource) (int64, bool) {
		return s.Id, true
	})

	return c.JSON(lo.Map(sources, func(s models.Source, _ int) sourceWithSubscribed {
		return sourceWithSubscribed{Source: s, Subscribed: subscribed[s.Id]}
	}))
}

func (a *api) getSource(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}
	source, err := a.store.GetSource(c.Context(), int64(id))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	user := currentUser(c)
	// Private sources are indistinguishable from missing ones for outsiders
	if source == nil || (!source.IsPublic && (user == nil || source.CreatedBy != user.Id)) {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	return c.JSON(source)
}

func (a *api) createSource(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "login required"})
	}

	var body struct {
		Name     string          `json:"name"`
		Type     string          `json:"type"`
		Config   json.RawMessage `json:"config"`
		IsPublic bool            `json:"is_public"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if body.Name == "" || body.Type == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name and type required"})
	}

	config, err := packs.NormalizeConfig(body.Config)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid config"})
	}

	id, err := a.store.CreateSource(c.Context(), models.Source{
		Name:      body.Name,
		Type:      body.Type,
		Config:    config,
		IsPublic:  body.IsPublic,
		IsActive:  true,
		CreatedBy: user.Id,
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "insert failed"})
	}
	return c.Status(201).JSON(fiber.Map{"id": id})
}

func (a *api) updateSource(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "login required"})
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	source, err := a.store.GetSource(c.Context(), int64(id))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	if source == nil {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	if source.CreatedBy != user.Id {
		return c.Status(403).JSON(fiber.Map{"error": "forbidden"})
	}

	var body struct {
		Name     *string         `json:"name"`
		Type     *string         `json:"type"`
		Config   json.RawMessage `json:"config"`
		IsActive *bool           `json:"is_active"`
		IsPublic *bool           `json:"is_public"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	patch := map[string]any{}
	if body.Name != nil {
		patch["name"] = *body.Name
	}
	if body.Type != nil {
		patch["type"] = *body.Type
	}
	if len(body.Config) > 0 {
		config, err := packs.NormalizeConfig(body.Config)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid config"})
		}
		patch["config"] = config
	}
	if body.IsActive != nil {
		patch["is_active"] = *body.IsActive
	}
	if body.IsPublic != nil {
		patch["is_public"] = *body.IsPublic
	}

	if err := a.store.UpdateSource(c.Context(), int64(id), patch); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (a *api) deleteSource(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "login required"})
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	source, err := a.store.GetSource(c.Context(), int64(id))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	if source == nil {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	if source.CreatedBy != user.Id {
		return c.Status(403).JSON(fiber.Map{"error": "forbidden"})
	}

	if err := a.store.SoftDeleteSource(c.Context(), int64(id)); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Packs

// packPayload exposes the decoded source templates instead of the raw JSON
// column.
type packPayload struct {
	models.Pack
	Sources []models.PackSource `json:"sources"`
}

func toPackPayload(p models.Pack) packPayload {
	sources, err := p.Sources()
	if err != nil {
		log.WithFields(log.Fields{
			"pack":  p.Slug,
			"error": err,
		}).Warn("Pack holds invalid sources JSON")
		sources = []models.PackSource{}
	}
	return packPayload{Pack: p, Sources: sources}
}

func (a *api) listPacks(c *fiber.Ctx) error {
	var userId int64
	if user := currentUser(c); user != nil {
		userId = user.Id
	}
	allPacks, err := a.store.ListPacks(c.Context(), userId)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	return c.JSON(lo.Map(allPacks, func(p models.Pack, _ int) packPayload {
		return toPackPayload(p)
	}))
}

func (a *api) getPack(c *fiber.Ctx) error {
	pack, err := a.store.GetPackBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	user := currentUser(c)
	if pack == nil || (!pack.IsPublic && (user == nil || pack.CreatedBy != user.Id)) {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	return c.JSON(toPackPayload(*pack))
}

func (a *api) createPack(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "login required"})
	}

	var body struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Slug        string          `json:"slug"`
		SourcesJSON string          `json:"sources_json"`
		Sources     json.RawMessage `json:"sources"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name required"})
	}

	slug := body.Slug
	if slug == "" {
		slug = db.Slugify(name)
	}
	slug, err := a.uniquePackSlug(c, slug)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "slug lookup failed"})
	}

	sourcesJSON := body.SourcesJSON
	if sourcesJSON == "" && len(body.Sources) > 0 {
		sourcesJSON = string(body.Sources)
	}

	id, err := a.store.CreatePack(c.Context(), models.Pack{
		Slug:        slug,
		Name:        name,
		Description: body.Description,
		SourcesJSON: sourcesJSON,
		CreatedBy:   user.Id,
		IsPublic:    true,
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "insert failed"})
	}
	return c.Status(201).JSON(fiber.Map{"id": id, "slug": slug})
}

func (a *api) uniquePackSlug(c *fiber.Ctx, base string) (string, error) {
	if base == "" {
		base = "pack"
	}
	candidate := base
	for i := 1; ; i++ {
		existing, err := a.store.GetPackBySlug(c.Context(), candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
}

func (a *api) installPack(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "login required"})
	}

	pack, err := a.store.GetPackBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	if pack == nil {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}

	result, err := a.installer.Install(c.Context(), pack, user.Id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "install failed"})
	}
	return c.JSON(fiber.Map{"ok": true, "added": result.Added, "skipped": result.Skipped})
}

func (a *api) deletePack(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "login required"})
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	pack, err := a.store.GetPack(c.Context(), int64(id))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	if pack == nil {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	if pack.CreatedBy != user.Id {
		return c.Status(403).JSON(fiber.Map{"error": "forbidden"})
	}

	if err := a.store.DeletePack(c.Context(), pack.Id); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Config key/value store

func (a *api) getConfig(c *fiber.Ctx) error {
	config, err := a.store.GetConfig(c.Context())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "query failed"})
	}
	return c.JSON(config)
}

func (a *api) putConfig(c *fiber.Ctx) error {
	if !a.validAPIKey(c) {
		return c.Status(401).JSON(fiber.Map{"error": "invalid api key"})
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	for key, value := range body {
		if err := a.store.SetConfig(c.Context(), key, value); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "write failed"})
		}
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Stats

func (a *api) digestsPerTime(c *fiber.Ctx) error {
	digestType := c.Query("type")
	timeAgg := c.Query("time", "hour")
	if timeAgg != "hour" && timeAgg != "day" && timeAgg != "week" {
		return c.Status(400).SendString("Invalid time")
	}

	counts, err := a.store.GetDigestCountPerTime(c.Context(), digestType, timeAgg)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Error("Error getting digests per time")
		return c.Status(500).SendString("Error getting digests per time")
	}

	return c.Status(200).JSON(counts)
}
