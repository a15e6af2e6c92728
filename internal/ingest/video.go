package ingest

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bryan-buckman/newsriver/internal/fetch"
)

// videoNormalizer parses channel feeds with the shared syndication mapping.
// Channel payloads carry media-extension thumbnails, which the embedded
// normalizer already folds in.
type videoNormalizer struct {
	syndicationNormalizer
}

const (
	channelFeedURL  = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"
	playlistFeedURL = "https://www.youtube.com/feeds/videos.xml?playlist_id=%s"
)

var (
	channelIDPattern   = regexp.MustCompile(`/channel/(UC[0-9A-Za-z_-]{22})`)
	inlineChannelID    = regexp.MustCompile(`"channelId"\s*:\s*"(UC[0-9A-Za-z_-]{22})"`)
	bareChannelID      = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)
	canonicalChannelID = regexp.MustCompile(`(UC[0-9A-Za-z_-]{22})`)
)

// PageFetcher is the page-scrape dependency of channel resolution.
type PageFetcher interface {
	Get(ctx context.Context, url string, cond fetch.Conditional) (*fetch.Result, error)
}

// ResolveVideoFeedURL turns an arbitrary channel, handle, or playlist URL
// into the stable syndication endpoint. Strategies in priority order:
// a channel-id pattern in the URL itself, a scrape of the page's canonical
// channel id, an explicit playlist id.
func ResolveVideoFeedURL(ctx context.Context, client PageFetcher, rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if bareChannelID.MatchString(trimmed) {
		return fmt.Sprintf(channelFeedURL, trimmed), nil
	}
	if strings.Contains(trimmed, "/feeds/videos.xml") {
		return trimmed, nil
	}

	if m := channelIDPattern.FindStringSubmatch(trimmed); m != nil {
		return fmt.Sprintf(channelFeedURL, m[1]), nil
	}

	if id, err := scrapeChannelID(ctx, client, trimmed); err == nil && id != "" {
		return fmt.Sprintf(channelFeedURL, id), nil
	}

	if u, err := url.Parse(trimmed); err == nil {
		if list := u.Query().Get("list"); list != "" {
			return fmt.Sprintf(playlistFeedURL, list), nil
		}
	}

	return "", fmt.Errorf("cannot resolve channel id from %q", rawURL)
}

// scrapeChannelID fetches the channel page and pulls the canonical id out
// of its markup.
func scrapeChannelID(ctx context.Context, client PageFetcher, pageURL string) (string, error) {
	res, err := client.Get(ctx, pageURL, fetch.Conditional{})
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return "", fmt.Errorf("parse channel page: %w", err)
	}

	// Canonical link and og:url both point at /channel/UC….
	for _, sel := range []string{`link[rel="canonical"]`, `meta[property="og:url"]`} {
		attr := "href"
		if strings.HasPrefix(sel, "meta") {
			attr = "content"
		}
		if val, ok := doc.Find(sel).First().Attr(attr); ok {
			if m := channelIDPattern.FindStringSubmatch(val); m != nil {
				return m[1], nil
			}
		}
	}
	if val, ok := doc.Find(`meta[itemprop="identifier"]`).First().Attr("content"); ok {
		if m := canonicalChannelID.FindStringSubmatch(val); m != nil {
			return m[1], nil
		}
	}
	// Last resort: the id embedded in the page's inline JSON.
	if m := inlineChannelID.FindSubmatch(res.Body); m != nil {
		return string(m[1]), nil
	}
	return "", fmt.Errorf("no channel id in page")
}
