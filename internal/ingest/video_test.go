package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/newsriver/internal/fetch"
)

// stubFetcher serves canned pages keyed by URL.
type stubFetcher struct {
	pages map[string]string
}

func (s *stubFetcher) Get(_ context.Context, url string, _ fetch.Conditional) (*fetch.Result, error) {
	body, ok := s.pages[url]
	if !ok {
		return nil, errors.New("no such page")
	}
	return &fetch.Result{StatusCode: 200, Body: []byte(body)}, nil
}

const testChannelID = "UCabcdefghijklmnopqrst-_"

func TestResolveVideoFeedURLDirectForms(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{}

	// A bare channel id needs no network at all.
	got, err := ResolveVideoFeedURL(ctx, fetcher, testChannelID)
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/feeds/videos.xml?channel_id="+testChannelID, got)

	// An existing feed URL passes through unchanged.
	feedURL := "https://www.youtube.com/feeds/videos.xml?channel_id=" + testChannelID
	got, err = ResolveVideoFeedURL(ctx, fetcher, feedURL)
	require.NoError(t, err)
	assert.Equal(t, feedURL, got)

	// A /channel/ URL carries the id in its path.
	got, err = ResolveVideoFeedURL(ctx, fetcher, "https://www.youtube.com/channel/"+testChannelID+"/videos")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/feeds/videos.xml?channel_id="+testChannelID, got)
}

func TestResolveVideoFeedURLScrapesCanonical(t *testing.T) {
	page := `<html><head>
		<link rel="canonical" href="https://www.youtube.com/channel/` + testChannelID + `">
	</head><body></body></html>`
	fetcher := &stubFetcher{pages: map[string]string{
		"https://www.youtube.com/@somehandle": page,
	}}

	got, err := ResolveVideoFeedURL(context.Background(), fetcher, "https://www.youtube.com/@somehandle")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/feeds/videos.xml?channel_id="+testChannelID, got)
}

func TestResolveVideoFeedURLScrapesInlineJSON(t *testing.T) {
	page := `<html><body><script>var cfg = {"channelId":"` + testChannelID + `"};</script></body></html>`
	fetcher := &stubFetcher{pages: map[string]string{
		"https://www.youtube.com/c/legacyname": page,
	}}

	got, err := ResolveVideoFeedURL(context.Background(), fetcher, "https://www.youtube.com/c/legacyname")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/feeds/videos.xml?channel_id="+testChannelID, got)
}

func TestResolveVideoFeedURLPlaylistFallback(t *testing.T) {
	fetcher := &stubFetcher{}
	got, err := ResolveVideoFeedURL(context.Background(), fetcher,
		"https://www.youtube.com/playlist?list=PL1234567890")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/feeds/videos.xml?playlist_id=PL1234567890", got)
}

func TestResolveVideoFeedURLUnresolvable(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://example.com/not-a-channel": "<html><body>nothing here</body></html>",
	}}
	_, err := ResolveVideoFeedURL(context.Background(), fetcher, "https://example.com/not-a-channel")
	assert.Error(t, err)
}
