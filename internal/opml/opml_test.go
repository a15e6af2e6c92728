package opml

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/newsriver/internal/model"
)

const sampleOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Top Feed" type="rss" xmlUrl="https://top.example.com/feed.xml" htmlUrl="https://top.example.com"/>
    <outline text="Tech">
      <outline text="Dev Blog" type="rss" xmlUrl="https://dev.example.com/rss" feedType="web"/>
      <outline text="Maker Channel" type="rss" xmlUrl="https://www.youtube.com/feeds/videos.xml?channel_id=UCabcdefghijklmnopqrstuv" feedType="video"/>
      <outline text="Nested">
        <outline text="Deep Feed" type="rss" xmlUrl="https://deep.example.com/feed"/>
      </outline>
    </outline>
    <outline text="Shows">
      <outline text="Weekly Pod" type="rss" xmlUrl="https://pod.example.com/rss" feedType="audio"/>
    </outline>
  </body>
</opml>`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(sampleOPML))
	require.NoError(t, err)
	require.Len(t, entries, 5)

	assert.Equal(t, Entry{
		Title:   "Top Feed",
		URL:     "https://top.example.com/feed.xml",
		SiteURL: "https://top.example.com",
		Type:    model.FeedTypeWeb,
	}, entries[0])

	assert.Equal(t, "Tech", entries[1].Folder)
	assert.Equal(t, model.FeedTypeWeb, entries[1].Type)
	assert.Equal(t, model.FeedTypeVideo, entries[2].Type)

	// Nesting collapses to the outermost folder.
	assert.Equal(t, "Tech", entries[3].Folder)
	assert.Equal(t, "https://deep.example.com/feed", entries[3].URL)

	assert.Equal(t, "Shows", entries[4].Folder)
	assert.Equal(t, model.FeedTypeAudio, entries[4].Type)
}

func TestParseUnknownTypeFallsBackToWeb(t *testing.T) {
	doc := `<opml version="2.0"><body>
		<outline text="X" xmlUrl="https://x.example.com/feed" feedType="hologram"/>
	</body></opml>`
	entries, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.FeedTypeWeb, entries[0].Type)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse(strings.NewReader("this is not xml at all <<<"))
	assert.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	in := []Entry{
		{Title: "Loose Feed", URL: "https://loose.example.com/rss", Type: model.FeedTypeWeb},
		{Folder: "Tech", Title: "Dev Blog", URL: "https://dev.example.com/rss", SiteURL: "https://dev.example.com", Type: model.FeedTypeWeb},
		{Folder: "Audio", Title: "Weekly Pod", URL: "https://pod.example.com/rss", Type: model.FeedTypeAudio},
	}

	out, err := Export("test export", in, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, string(out), `version="2.0"`)

	back, err := Parse(strings.NewReader(string(out)))
	require.NoError(t, err)
	require.Len(t, back, 3)

	byURL := make(map[string]Entry, len(back))
	for _, e := range back {
		byURL[e.URL] = e
	}
	assert.Equal(t, "", byURL["https://loose.example.com/rss"].Folder)
	assert.Equal(t, "Tech", byURL["https://dev.example.com/rss"].Folder)
	assert.Equal(t, "https://dev.example.com", byURL["https://dev.example.com/rss"].SiteURL)
	assert.Equal(t, model.FeedTypeAudio, byURL["https://pod.example.com/rss"].Type)
}

func TestExportStableOrder(t *testing.T) {
	in := []Entry{
		{Folder: "Zeta", Title: "Z", URL: "https://z.example.com/rss", Type: model.FeedTypeWeb},
		{Folder: "Alpha", Title: "A", URL: "https://a.example.com/rss", Type: model.FeedTypeWeb},
	}
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	first, err := Export("t", in, now)
	require.NoError(t, err)
	second, err := Export("t", in, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Folders sort alphabetically regardless of input order.
	assert.Less(t, strings.Index(string(first), "Alpha"), strings.Index(string(first), "Zeta"))
}
