package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/newsriver/internal/model"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Blog &amp; Notes</title>
  <link>https://blog.example.com</link>
  <item>
    <guid>https://blog.example.com/posts/1</guid>
    <title>First Post &#8212; Hello</title>
    <link>https://blog.example.com/posts/1</link>
    <author>jane@example.com (Jane Doe)</author>
    <description>A short &amp; sweet summary.</description>
    <pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>No GUID, link only</title>
    <link>https://blog.example.com/posts/2</link>
    <pubDate>Tue, 03 Mar 2026 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Neither guid nor link</title>
    <description>dropped</description>
  </item>
</channel>
</rss>`

const samplePodcast = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
  <title>Example Podcast</title>
  <link>https://pod.example.com</link>
  <itunes:image href="https://pod.example.com/cover.jpg"/>
  <item>
    <guid>ep-42</guid>
    <title>Episode 42</title>
    <link>https://pod.example.com/ep/42</link>
    <enclosure url="https://cdn.example.com/ep42.mp3" type="audio/mpeg" length="52428800"/>
    <itunes:duration>1:02:03</itunes:duration>
    <itunes:image href="https://pod.example.com/ep42.jpg"/>
    <pubDate>Wed, 04 Mar 2026 06:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

const sampleMediaFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">
  <title>Example Channel</title>
  <entry>
    <id>yt:video:abc123</id>
    <title>A Video</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=abc123"/>
    <published>2026-03-05T12:00:00+00:00</published>
    <media:group>
      <media:thumbnail url="https://i.ytimg.com/vi/abc123/hqdefault.jpg" width="480" height="360"/>
    </media:group>
  </entry>
</feed>`

func TestNormalizeWebFeed(t *testing.T) {
	n, err := ForType(model.FeedTypeWeb)
	require.NoError(t, err)

	res, err := n.Normalize([]byte(sampleRSS), &model.Feed{Type: model.FeedTypeWeb})
	require.NoError(t, err)

	assert.Equal(t, "Example Blog & Notes", res.Metadata.Title)
	assert.Equal(t, "https://blog.example.com", res.Metadata.SiteURL)

	// The identifier-less item is dropped, not errored.
	require.Len(t, res.Articles, 2)

	first := res.Articles[0]
	assert.Equal(t, "https://blog.example.com/posts/1", first.GUID)
	assert.Equal(t, "First Post — Hello", first.Title)
	assert.Equal(t, "A short & sweet summary.", first.Summary)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), first.PublishedAt.UTC())

	// Missing guid falls back to the link.
	assert.Equal(t, "https://blog.example.com/posts/2", res.Articles[1].GUID)
}

func TestNormalizePodcastFeed(t *testing.T) {
	n, err := ForType(model.FeedTypeAudio)
	require.NoError(t, err)

	res, err := n.Normalize([]byte(samplePodcast), &model.Feed{Type: model.FeedTypeAudio})
	require.NoError(t, err)
	assert.Equal(t, "https://pod.example.com/cover.jpg", res.Metadata.IconURL)

	require.Len(t, res.Articles, 1)
	ep := res.Articles[0]
	assert.Equal(t, "ep-42", ep.GUID)
	assert.Equal(t, "https://cdn.example.com/ep42.mp3", ep.Enclosure.URL)
	assert.Equal(t, "audio/mpeg", ep.Enclosure.Type)
	assert.EqualValues(t, 52428800, ep.Enclosure.Length)
	assert.EqualValues(t, 3723, ep.Enclosure.Duration)
	assert.Equal(t, "https://pod.example.com/ep42.jpg", ep.ThumbnailURL)
}

func TestNormalizeVideoFeedThumbnail(t *testing.T) {
	n, err := ForType(model.FeedTypeVideo)
	require.NoError(t, err)

	res, err := n.Normalize([]byte(sampleMediaFeed), &model.Feed{Type: model.FeedTypeVideo})
	require.NoError(t, err)
	require.Len(t, res.Articles, 1)
	assert.Equal(t, "yt:video:abc123", res.Articles[0].GUID)
	assert.Equal(t, "https://i.ytimg.com/vi/abc123/hqdefault.jpg", res.Articles[0].ThumbnailURL)
}

func TestNormalizeMalformedPayload(t *testing.T) {
	n, err := ForType(model.FeedTypeForum)
	require.NoError(t, err)

	_, err = n.Normalize([]byte("<html><body>not a feed</body></html>"), &model.Feed{Type: model.FeedTypeForum})
	assert.Error(t, err)
}

func TestForTypeRejectsUnknown(t *testing.T) {
	_, err := ForType(model.FeedType("newspaper"))
	assert.Error(t, err)
}

func TestParseClockDuration(t *testing.T) {
	cases := map[string]int64{
		"1:02:03": 3723,
		"42:10":   2530,
		"95":      95,
		" 10:00 ": 600,
		"":        0,
		"1:2:3:4": 0,
		"1h02m":   0,
		"12:xx":   0,
	}
	for input, want := range cases {
		assert.Equal(t, want, parseClockDuration(input), "input %q", input)
	}
}
