package classify_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"clawfeed/classify"
	"clawfeed/fetch"
	"clawfeed/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	result *fetch.Result
	err    error
	calls  int
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestClassifyPatternRules(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		expectedType string
		expectedName string
		config       map[string]any
	}{
		{
			name:         "twitter list",
			url:          "https://x.com/i/lists/1234567890",
			expectedType: models.SourceTwitterList,
			expectedName: "X List 1234567890",
			config:       map[string]any{"list_url": "https://x.com/i/lists/1234567890"},
		},
		{
			name:         "x.com handle",
			url:          "https://x.com/karpathy",
			expectedType: models.SourceTwitterFeed,
			expectedName: "@karpathy",
			config:       map[string]any{"handle": "@karpathy"},
		},
		{
			name:         "twitter.com handle with at sign",
			url:          "https://twitter.com/@sama",
			expectedType: models.SourceTwitterFeed,
			expectedName: "@sama",
			config:       map[string]any{"handle": "@sama"},
		},
		{
			name:         "reserved segment falls back to generic feed",
			url:          "https://x.com/search?q=ai",
			expectedType: models.SourceTwitterFeed,
			expectedName: "X Feed",
			config:       map[string]any{"handle": "https://x.com/search?q=ai"},
		},
		{
			name:         "subreddit",
			url:          "https://www.reddit.com/r/LocalLLaMA/",
			expectedType: models.SourceReddit,
			expectedName: "r/LocalLLaMA",
			config:       map[string]any{"subreddit": "LocalLLaMA", "sort": "hot", "limit": 20},
		},
		{
			name:         "github trending with language",
			url:          "https://github.com/trending/rust?since=daily",
			expectedType: models.SourceGithubTrending,
			expectedName: "GitHub Trending - rust",
			config:       map[string]any{"language": "rust", "since": "daily"},
		},
		{
			name:         "github trending without language",
			url:          "https://github.com/trending",
			expectedType: models.SourceGithubTrending,
			expectedName: "GitHub Trending",
			config:       map[string]any{"language": "all", "since": "daily"},
		},
		{
			name:         "hacker news",
			url:          "https://news.ycombinator.com/news",
			expectedType: models.SourceHackerNews,
			expectedName: "Hacker News",
			config:       map[string]any{"filter": "top", "min_score": 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A fetcher that always fails proves pattern rules stay offline
			fetcher := &stubFetcher{err: errors.New("no network allowed")}
			classifier := classify.New(fetcher)

			result, err := classifier.Classify(context.Background(), tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedType, result.Type)
			assert.Equal(t, tt.expectedName, result.Name)
			assert.Equal(t, tt.config, result.Config)
			assert.Equal(t, 0, fetcher.calls)
		})
	}
}

func TestClassifySniffRSS(t *testing.T) {
	body := `<?xml version="1.0"?>
		<rss version="2.0"><channel>
		<title><![CDATA[Simon Willison's Weblog]]></title>
		<item><title>First post</title><link>https://example.com/1</link></item>
		<item><title>Second post</title><link>https://example.com/2</link></item>
		</channel></rss>`

	classifier := classify.New(&stubFetcher{result: &fetch.Result{
		ContentType: "application/rss+xml",
		Body:        []byte(body),
	}})

	result, err := classifier.Classify(context.Background(), "https://simonwillison.net/atom/everything/")
	require.NoError(t, err)
	assert.Equal(t, models.SourceRss, result.Type)
	assert.Equal(t, "Simon Willison's Weblog", result.Name)
	assert.Equal(t, "📡", result.Icon)
	assert.Equal(t, map[string]any{"url": "https://simonwillison.net/atom/everything/"}, result.Config)
	require.Len(t, result.Preview, 2)
	assert.Equal(t, "First post", result.Preview[0].Title)
	assert.Equal(t, "https://example.com/1", result.Preview[0].Url)
}

func TestClassifySniffRSSWithoutTitle(t *testing.T) {
	classifier := classify.New(&stubFetcher{result: &fetch.Result{
		ContentType: "text/xml",
		Body:        []byte(`<?xml version="1.0"?><rss><channel></channel></rss>`),
	}})

	result, err := classifier.Classify(context.Background(), "https://example.org/feed.xml")
	require.NoError(t, err)
	assert.Equal(t, models.SourceRss, result.Type)
	assert.Equal(t, "example.org", result.Name)
}

func TestClassifySniffJSONFeed(t *testing.T) {
	body := `{
		"version": "https://jsonfeed.org/version/1.1",
		"title": "Daily Digest",
		"items": [
			{"title": "One", "url": "https://example.com/1"},
			{"url": "https://example.com/2"},
			{"title": "Three", "url": "https://example.com/3"},
			{"title": "Four", "url": "https://example.com/4"},
			{"title": "Five", "url": "https://example.com/5"},
			{"title": "Six", "url": "https://example.com/6"}
		]
	}`

	classifier := classify.New(&stubFetcher{result: &fetch.Result{
		ContentType: "application/feed+json",
		Body:        []byte(body),
	}})

	result, err := classifier.Classify(context.Background(), "https://example.com/feed.json")
	require.NoError(t, err)
	assert.Equal(t, models.SourceDigestFeed, result.Type)
	assert.Equal(t, "Daily Digest", result.Name)
	assert.Equal(t, "📰", result.Icon)
	require.Len(t, result.Preview, 5)
	assert.Equal(t, "(untitled)", result.Preview[1].Title)
}

func TestClassifySniffHTML(t *testing.T) {
	body := `<!DOCTYPE html><html><head>
		<title>
			Some   Site

			With Messy Whitespace
		</title></head><body></body></html>`

	classifier := classify.New(&stubFetcher{result: &fetch.Result{
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
	}})

	result, err := classifier.Classify(context.Background(), "https://some.site/page")
	require.NoError(t, err)
	assert.Equal(t, models.SourceWebsite, result.Type)
	assert.Equal(t, "Some Site With Messy Whitespace", result.Name)
	assert.Equal(t, "🌐", result.Icon)
	assert.Empty(t, result.Preview)
}

func TestClassifySniffHTMLTitleCappedAtHundredRunes(t *testing.T) {
	long := strings.Repeat("标", 130)
	body := "<html><head><title>" + long + "</title></head><body></body></html>"

	classifier := classify.New(&stubFetcher{result: &fetch.Result{
		ContentType: "text/html",
		Body:        []byte(body),
	}})

	result, err := classifier.Classify(context.Background(), "https://some.site/long")
	require.NoError(t, err)
	assert.Equal(t, models.SourceWebsite, result.Type)
	// Truncation counts runes, not bytes
	assert.Equal(t, strings.Repeat("标", 100), result.Name)
}

func TestClassifySniffHTMLWithoutTitle(t *testing.T) {
	classifier := classify.New(&stubFetcher{result: &fetch.Result{
		ContentType: "text/html",
		Body:        []byte("<html><body><p>no title here</p></body></html>"),
	}})

	result, err := classifier.Classify(context.Background(), "https://bare.example.net/page")
	require.NoError(t, err)
	assert.Equal(t, models.SourceWebsite, result.Type)
	assert.Equal(t, "bare.example.net", result.Name)
}

func TestClassifyUndetected(t *testing.T) {
	classifier := classify.New(&stubFetcher{result: &fetch.Result{
		ContentType: "text/plain",
		Body:        []byte("just some text"),
	}})

	_, err := classifier.Classify(context.Background(), "https://example.com/notes.txt")
	assert.ErrorIs(t, err, classify.ErrUndetected)
}

func TestClassifyFetchErrorPropagates(t *testing.T) {
	classifier := classify.New(&stubFetcher{err: fetch.ErrTimeout})

	_, err := classifier.Classify(context.Background(), "https://slow.example.com/")
	assert.ErrorIs(t, err, fetch.ErrTimeout)
}
