package ingest

import (
	"bytes"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/bryan-buckman/newsriver/internal/model"
)

// syndicationNormalizer handles the sources parsed as syndication
// documents: web feeds, forum feeds, and audio-episode feeds. Video
// channels share the item mapping (see videoNormalizer).
type syndicationNormalizer struct {
	kind model.FeedType
}

func (n *syndicationNormalizer) Normalize(payload []byte, feed *model.Feed) (*Result, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse %s payload: %w", n.kind, err)
	}

	res := &Result{
		Metadata: Metadata{
			Title:   html.UnescapeString(strings.TrimSpace(parsed.Title)),
			SiteURL: strings.TrimSpace(parsed.Link),
		},
	}
	if parsed.Image != nil {
		res.Metadata.IconURL = parsed.Image.URL
	}
	if res.Metadata.IconURL == "" && parsed.ITunesExt != nil {
		res.Metadata.IconURL = parsed.ITunesExt.Image
	}

	for _, item := range parsed.Items {
		article, ok := n.mapItem(item)
		if !ok {
			continue
		}
		res.Articles = append(res.Articles, article)
	}
	return res, nil
}

// mapItem folds one syndication item into the canonical article shape.
// Items without any usable identifier are dropped.
func (n *syndicationNormalizer) mapItem(item *gofeed.Item) (model.Article, bool) {
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}
	if guid == "" {
		return model.Article{}, false
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	a := model.Article{
		GUID:        guid,
		Title:       html.UnescapeString(strings.TrimSpace(item.Title)),
		URL:         item.Link,
		Author:      itemAuthor(item),
		Summary:     html.UnescapeString(strings.TrimSpace(item.Description)),
		Content:     content,
		PublishedAt: itemPublished(item),
	}

	if len(item.Enclosures) > 0 {
		enc := item.Enclosures[0]
		a.Enclosure = model.Enclosure{
			URL:    enc.URL,
			Type:   enc.Type,
			Length: parseInt64(enc.Length),
		}
	}
	if item.ITunesExt != nil && item.ITunesExt.Duration != "" {
		a.Enclosure.Duration = parseClockDuration(item.ITunesExt.Duration)
	}

	a.ThumbnailURL = itemThumbnail(item)
	if a.ThumbnailURL == "" {
		a.ThumbnailURL = ExtractHeroImage(a.Content)
	}
	return a, true
}

// itemPublished prefers the parsed timestamps and falls back to a lenient
// parse of the raw date string. The pipeline substitutes the fetch time
// when nothing is usable.
func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	if item.Published != "" {
		if t, err := dateparse.ParseAny(item.Published); err == nil {
			return t
		}
	}
	return time.Time{}
}

func itemAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return html.UnescapeString(item.Authors[0].Name)
	}
	if item.Author != nil {
		return html.UnescapeString(item.Author.Name)
	}
	return ""
}

// itemThumbnail resolves the explicit media metadata in priority order:
// the item image, a media:thumbnail, a media:content image, the iTunes
// episode image.
func itemThumbnail(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	if media, ok := item.Extensions["media"]; ok {
		if url := mediaThumbnail(media); url != "" {
			return url
		}
		// Channel feeds nest the media elements one level down.
		for _, group := range media["group"] {
			if url := mediaThumbnail(group.Children); url != "" {
				return url
			}
		}
	}
	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		return item.ITunesExt.Image
	}
	return ""
}

func mediaThumbnail(elems map[string][]ext.Extension) string {
	for _, thumb := range elems["thumbnail"] {
		if url := thumb.Attrs["url"]; url != "" {
			return url
		}
	}
	for _, content := range elems["content"] {
		if strings.HasPrefix(content.Attrs["type"], "image/") || content.Attrs["medium"] == "image" {
			if url := content.Attrs["url"]; url != "" {
				return url
			}
		}
	}
	return ""
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseClockDuration converts iTunes-style durations ("1:02:03", "42:10",
// or plain seconds) to seconds.
func parseClockDuration(s string) int64 {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0
	}
	var total int64
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}
