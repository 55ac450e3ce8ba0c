package classify_test

import (
	"testing"

	"clawfeed/classify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPreviewRSS(t *testing.T) {
	feed := []byte(`<rss><channel>
		<item><title><![CDATA[Post & stuff]]></title><link>https://example.com/a</link></item>
		<item><title>Plain title</title><link>https://example.com/b</link></item>
		<item><link>https://example.com/c</link></item>
	</channel></rss>`)

	items := classify.ExtractPreview(feed)
	require.Len(t, items, 3)
	assert.Equal(t, "Post & stuff", items[0].Title)
	assert.Equal(t, "https://example.com/a", items[0].Url)
	assert.Equal(t, "Plain title", items[1].Title)
	assert.Equal(t, "(untitled)", items[2].Title)
	assert.Equal(t, "https://example.com/c", items[2].Url)
}

func TestExtractPreviewAtom(t *testing.T) {
	feed := []byte(`<feed>
		<entry><title>Atom entry</title><link rel="alternate" href="https://example.com/atom"/></entry>
	</feed>`)

	items := classify.ExtractPreview(feed)
	require.Len(t, items, 1)
	assert.Equal(t, "Atom entry", items[0].Title)
	assert.Equal(t, "https://example.com/atom", items[0].Url)
}

func TestExtractPreviewCapsAtFive(t *testing.T) {
	feed := []byte(`<rss><channel>
		<item><title>1</title></item>
		<item><title>2</title></item>
		<item><title>3</title></item>
		<item><title>4</title></item>
		<item><title>5</title></item>
		<item><title>6</title></item>
		<item><title>7</title></item>
	</channel></rss>`)

	items := classify.ExtractPreview(feed)
	assert.Len(t, items, 5)
}

func TestExtractPreviewEmptyFeed(t *testing.T) {
	assert.Empty(t, classify.ExtractPreview([]byte(`<rss><channel></channel></rss>`)))
}
