package classify

import (
	"regexp"
	"strings"

	"clawfeed/models"
)

const (
	maxPreviewItems     = 5
	untitledPlaceholder = "(untitled)"
)

// Preview extraction deliberately scans for item blocks with bounded regex
// matching instead of a conformant XML parser. It tolerates malformed feeds
// at the cost of correctness on adversarial input; a strict parser can be
// swapped in behind the same contract.
var (
	itemBlockRe = regexp.MustCompile(`(?is)<item[^>]*>(.*?)</item>|<entry[^>]*>(.*?)</entry>`)
	itemTitleRe = regexp.MustCompile(`(?is)<title[^>]*>(?:<!\[CDATA\[)?(.*?)(?:\]\]>)?</title>`)
	atomLinkRe  = regexp.MustCompile(`(?i)<link[^>]*href=["']([^"']+)["']`)
	rssLinkRe   = regexp.MustCompile(`(?is)<link[^>]*>(.*?)</link>`)
)

// ExtractPreview pulls at most five headline items out of raw RSS/Atom bytes.
func ExtractPreview(feed []byte) []models.PreviewItem {
	items := make([]models.PreviewItem, 0, maxPreviewItems)

	for _, m := range itemBlockRe.FindAllSubmatch(feed, maxPreviewItems) {
		block := m[1]
		if len(block) == 0 {
			block = m[2]
		}

		title := untitledPlaceholder
		if tm := itemTitleRe.FindSubmatch(block); tm != nil {
			if t := strings.TrimSpace(string(tm[1])); t != "" {
				title = t
			}
		}

		link := ""
		if lm := atomLinkRe.FindSubmatch(block); lm != nil {
			link = strings.TrimSpace(string(lm[1]))
		} else if lm := rssLinkRe.FindSubmatch(block); lm != nil {
			link = strings.TrimSpace(string(lm[1]))
		}

		items = append(items, models.PreviewItem{Title: title, Url: link})
	}

	return items
}
