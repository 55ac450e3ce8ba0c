package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"clawfeed/fetch"
	"clawfeed/models"

	log "github.com/sirupsen/logrus"
)

// ErrUndetected is returned when no rule matches the submitted URL.
var ErrUndetected = errors.New("cannot detect source type")

// Fetcher is the network dependency of the classifier. Pattern rules never
// touch it; only content sniffing does.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

type Classifier struct {
	fetcher Fetcher
}

func New(fetcher Fetcher) *Classifier {
	return &Classifier{fetcher: fetcher}
}

// patternRule inspects the URL string alone. Returns false when the rule does
// not apply, letting the next rule in the chain run.
type patternRule func(rawURL string) (*models.ClassificationResult, bool)

// Ordered by specificity; cheap, certain checks first so a network fetch
// stays the last resort.
var patternRules = []patternRule{
	matchTwitter,
	matchReddit,
	matchGithubTrending,
	matchHackerNews,
}

var (
	twitterListRe   = regexp.MustCompile(`/i/lists/(\d+)`)
	twitterHandleRe = regexp.MustCompile(`(?:x\.com|twitter\.com)/(@?[A-Za-z0-9_]+)`)
	redditRe        = regexp.MustCompile(`reddit\.com/r/([A-Za-z0-9_]+)`)
	trendingLangRe  = regexp.MustCompile(`(?i)/trending/([a-z0-9+#.\-]+)`)
)

// Path segments on x.com that are never profile handles.
var reservedTwitterSegments = map[string]bool{
	"i": true, "search": true, "explore": true, "home": true,
	"notifications": true, "messages": true, "settings": true,
}

// Classify turns a URL into a typed source descriptor. Pattern rules
// short-circuit without network I/O; everything else costs one bounded fetch.
func (c *Classifier) Classify(ctx context.Context, rawURL string) (*models.ClassificationResult, error) {
	for _, rule := range patternRules {
		if result, ok := rule(rawURL); ok {
			log.WithFields(log.Fields{
				"url":  rawURL,
				"type": result.Type,
			}).Info("Classified by URL pattern")
			return result, nil
		}
	}
	return c.sniff(ctx, rawURL)
}

func matchTwitter(rawURL string) (*models.ClassificationResult, bool) {
	lower := strings.ToLower(rawURL)
	if !strings.Contains(lower, "x.com") && !strings.Contains(lower, "twitter.com") {
		return nil, false
	}

	if m := twitterListRe.FindStringSubmatch(rawURL); m != nil {
		return &models.ClassificationResult{
			Name:   "X List " + m[1],
			Type:   models.SourceTwitterList,
			Config: map[string]any{"list_url": rawURL},
			Icon:   "🐦",
		}, true
	}

	if m := twitterHandleRe.FindStringSubmatch(rawURL); m != nil && !reservedTwitterSegments[strings.ToLower(m[1])] {
		handle := strings.TrimPrefix(m[1], "@")
		return &models.ClassificationResult{
			Name:   "@" + handle,
			Type:   models.SourceTwitterFeed,
			Config: map[string]any{"handle": "@" + handle},
			Icon:   "🐦",
		}, true
	}

	return &models.ClassificationResult{
		Name:   "X Feed",
		Type:   models.SourceTwitterFeed,
		Config: map[string]any{"handle": rawURL},
		Icon:   "🐦",
	}, true
}

func matchReddit(rawURL string) (*models.ClassificationResult, bool) {
	m := redditRe.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, false
	}
	return &models.ClassificationResult{
		Name:   "r/" + m[1],
		Type:   models.SourceReddit,
		Config: map[string]any{"subreddit": m[1], "sort": "hot", "limit": 20},
		Icon:   "👽",
	}, true
}

func matchGithubTrending(rawURL string) (*models.ClassificationResult, bool) {
	if !strings.Contains(strings.ToLower(rawURL), "github.com/trending") {
		return nil, false
	}
	lang := ""
	if m := trendingLangRe.FindStringSubmatch(rawURL); m != nil {
		lang = m[1]
	}
	name := "GitHub Trending"
	if lang != "" {
		name += " - " + lang
	}
	config := map[string]any{"language": lang, "since": "daily"}
	if lang == "" {
		config["language"] = "all"
	}
	return &models.ClassificationResult{
		Name:   name,
		Type:   models.SourceGithubTrending,
		Config: config,
		Icon:   "⭐",
	}, true
}

func matchHackerNews(rawURL string) (*models.ClassificationResult, bool) {
	if !strings.Contains(strings.ToLower(rawURL), "news.ycombinator.com") {
		return nil, false
	}
	return &models.ClassificationResult{
		Name:   "Hacker News",
		Type:   models.SourceHackerNews,
		Config: map[string]any{"filter": "top", "min_score": 100},
		Icon:   "🔶",
	}, true
}

var (
	feedTitleRe = regexp.MustCompile(`<title[^>]*>(?:<!\[CDATA\[)?(.*?)(?:\]\]>)?</title>`)
	htmlTitleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

type jsonFeedDoc struct {
	Version string `json:"version"`
	Title   string `json:"title"`
	Items   []struct {
		Title string `json:"title"`
		Url   string `json:"url"`
	} `json:"items"`
}

// sniff fetches the URL once and inspects the declared content type, falling
// back to body markers when the header is absent or generic.
func (c *Classifier) sniff(ctx context.Context, rawURL string) (*models.ClassificationResult, error) {
	resp, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	ct := strings.ToLower(resp.ContentType)
	body := string(resp.Body)
	trimmed := strings.TrimLeft(body, " \t\r\n")

	// RSS/Atom
	if strings.Contains(ct, "xml") || strings.Contains(ct, "rss") || strings.Contains(ct, "atom") ||
		strings.HasPrefix(trimmed, "<?xml") || strings.Contains(body, "<rss") || strings.Contains(body, "<feed") {
		if strings.Contains(body, "<rss") || strings.Contains(body, "<feed") || strings.Contains(body, "<channel") {
			name := hostOf(rawURL)
			if m := feedTitleRe.FindStringSubmatch(body); m != nil {
				name = strings.TrimSpace(m[1])
			}
			return &models.ClassificationResult{
				Name:    name,
				Type:    models.SourceRss,
				Config:  map[string]any{"url": rawURL},
				Icon:    "📡",
				Preview: ExtractPreview(resp.Body),
			}, nil
		}
	}

	// JSON Feed
	if strings.Contains(ct, "json") || strings.HasPrefix(trimmed, "{") {
		var doc jsonFeedDoc
		if err := json.Unmarshal(resp.Body, &doc); err == nil && strings.Contains(doc.Version, "jsonfeed") {
			preview := make([]models.PreviewItem, 0, maxPreviewItems)
			for _, item := range doc.Items {
				if len(preview) >= maxPreviewItems {
					break
				}
				title := item.Title
				if title == "" {
					title = untitledPlaceholder
				}
				preview = append(preview, models.PreviewItem{Title: title, Url: item.Url})
			}
			name := doc.Title
			if name == "" {
				name = hostOf(rawURL)
			}
			return &models.ClassificationResult{
				Name:    name,
				Type:    models.SourceDigestFeed,
				Config:  map[string]any{"url": rawURL},
				Icon:    "📰",
				Preview: preview,
			}, nil
		}
	}

	// HTML, treat as plain website
	if strings.Contains(ct, "html") || strings.Contains(body, "<html") || strings.Contains(body, "<!DOCTYPE") {
		name := hostOf(rawURL)
		if m := htmlTitleRe.FindStringSubmatch(body); m != nil {
			name = truncateRunes(spaceRe.ReplaceAllString(strings.TrimSpace(m[1]), " "), 100)
		}
		return &models.ClassificationResult{
			Name:   name,
			Type:   models.SourceWebsite,
			Config: map[string]any{"url": rawURL},
			Icon:   "🌐",
		}, nil
	}

	return nil, ErrUndetected
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
