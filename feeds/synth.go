// Package feeds renders a user's stored digests as standards-compliant
// syndication feeds (RSS 2.0 and JSON Feed 1.1).
package feeds

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clawfeed/models"
)

// Outward-facing content types are bit-significant for feed readers.
const (
	ContentTypeJSONFeed = "application/feed+json; charset=utf-8"
	ContentTypeRSS      = "application/rss+xml; charset=utf-8"
)

const (
	jsonFeedVersion   = "https://jsonfeed.org/version/1.1"
	rssDescriptionCap = 2000
)

type jsonFeed struct {
	Version     string         `json:"version"`
	Title       string         `json:"title"`
	HomePageURL string         `json:"home_page_url"`
	FeedURL     string         `json:"feed_url"`
	Items       []jsonFeedItem `json:"items"`
}

type jsonFeedItem struct {
	Id            string `json:"id"`
	Title         string `json:"title"`
	ContentText   string `json:"content_text"`
	DatePublished string `json:"date_published"`
	Url           string `json:"url"`
}

// RenderJSON produces a JSON Feed 1.1 document for the user's digests. An
// empty digest list yields a valid feed with an empty items array.
func RenderJSON(user models.User, digests []models.Digest, baseURL string) ([]byte, error) {
	feed := jsonFeed{
		Version:     jsonFeedVersion,
		Title:       user.Name + "'s ClawFeed",
		HomePageURL: baseURL,
		FeedURL:     baseURL + "/feed/" + user.Slug + ".json",
		Items:       make([]jsonFeedItem, 0, len(digests)),
	}
	for _, d := range digests {
		published := parseDigestTime(d.CreatedAt).In(sgt)
		feed.Items = append(feed.Items, jsonFeedItem{
			Id:            strconv.FormatInt(d.Id, 10),
			Title:         DigestTitle(d),
			ContentText:   d.Content,
			DatePublished: published.Format(time.RFC3339),
			Url:           fmt.Sprintf("%s/#digest-%d", baseURL, d.Id),
		})
	}
	return json.Marshal(feed)
}

// RenderRSS produces an RSS 2.0 document for the user's digests.
func RenderRSS(user models.User, digests []models.Digest, baseURL string) []byte {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(&b, "<rss version=\"2.0\"><channel><title>%s's ClawFeed</title><link>%s</link><description>ClawFeed Feed</description>\n",
		EscapeXML(user.Name), baseURL)

	for _, d := range digests {
		published := parseDigestTime(d.CreatedAt)
		fmt.Fprintf(&b,
			"<item><title>%s</title><link>%s/#digest-%d</link><guid isPermaLink=\"false\">%d</guid><pubDate>%s</pubDate><description>%s</description></item>\n",
			EscapeXML(DigestTitle(d)),
			baseURL, d.Id,
			d.Id,
			published.UTC().Format(http.TimeFormat),
			EscapeXML(truncateRunes(d.Content, rssDescriptionCap)),
		)
	}

	b.WriteString("</channel></rss>")
	return []byte(b.String())
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

var xmlUnescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&amp;", "&",
)

// EscapeXML covers the characters RSS requires escaping: & < > ".
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// UnescapeXML reverses EscapeXML.
func UnescapeXML(s string) string {
	return xmlUnescaper.Replace(s)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
