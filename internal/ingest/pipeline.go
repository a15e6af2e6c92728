package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryan-buckman/newsriver/internal/database"
	"github.com/bryan-buckman/newsriver/internal/events"
	"github.com/bryan-buckman/newsriver/internal/feedstate"
	"github.com/bryan-buckman/newsriver/internal/fetch"
	"github.com/bryan-buckman/newsriver/internal/model"
)

const (
	// feedFetchTimeout bounds one feed poll including retries.
	feedFetchTimeout = 45 * time.Second
	// readabilityTimeout is deliberately shorter: full-text extraction is
	// nice to have and never worth stalling ingestion for.
	readabilityTimeout = 10 * time.Second
	// readabilityPerRefresh caps out-of-band page fetches per refresh.
	readabilityPerRefresh = 5
)

// Pipeline runs fetch → normalize → persist → state update for one feed.
type Pipeline struct {
	db     *database.DB
	client *fetch.Client
	bus    *events.Bus
	log    *logrus.Entry
	now    func() time.Time
}

// NewPipeline wires the single-feed refresh path.
func NewPipeline(db *database.DB, client *fetch.Client, bus *events.Bus, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		db:     db,
		client: client,
		bus:    bus,
		log:    log,
		now:    time.Now,
	}
}

// RefreshFeed runs the pipeline for one feed by id, bypassing due-selection.
// This is the manual "refresh now" entry point; a success resets the error
// count, closing an open circuit.
func (p *Pipeline) RefreshFeed(ctx context.Context, feedID int64) (int, error) {
	feed, err := p.db.GetFeedByID(feedID)
	if err != nil {
		return 0, fmt.Errorf("load feed %d: %w", feedID, err)
	}
	if feed.DeletedAt != nil {
		return 0, fmt.Errorf("feed %d is deleted", feedID)
	}
	return p.Refresh(ctx, feed)
}

// Refresh runs the pipeline for one already-loaded feed. Returns the number
// of newly ingested articles. A returned error means the attempt was
// recorded as a feed-level failure; it never needs further handling beyond
// logging.
func (p *Pipeline) Refresh(ctx context.Context, feed *model.Feed) (int, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, feedFetchTimeout)
	defer cancel()

	res, err := p.client.Get(fetchCtx, feed.URL, fetch.Conditional{
		ETag:         feed.ETag,
		LastModified: feed.LastModified,
	})
	if err != nil {
		return 0, p.recordFailure(feed, fmt.Errorf("fetch: %w", err))
	}

	now := p.now().UTC()

	// An unchanged source is a success with zero new articles. Validators
	// stay as they were.
	if res.NotModified {
		tr := feedstate.ComputeNextFetch(feed, now, true, res.RetryAfter, nil)
		if err := p.db.MarkFeedRefreshed(feed.ID, now, tr.NextFetchAt, feed.ETag, feed.LastModified); err != nil {
			return 0, fmt.Errorf("mark refreshed: %w", err)
		}
		p.publishRefreshed(feed.ID, 0)
		return 0, nil
	}

	normalizer, err := ForType(feed.Type)
	if err != nil {
		return 0, p.recordFailure(feed, err)
	}
	result, err := normalizer.Normalize(res.Body, feed)
	if err != nil {
		// A parse failure fails the whole attempt; partial output is never
		// applied.
		return 0, p.recordFailure(feed, err)
	}

	newCount := p.persistArticles(ctx, feed, result.Articles, now)

	if m := result.Metadata; m.Title != "" || m.SiteURL != "" || m.IconURL != "" {
		if err := p.db.ApplyFeedMetadata(feed.ID, m.Title, m.SiteURL, m.IconURL); err != nil {
			p.log.WithField("feed_id", feed.ID).WithError(err).Warn("apply feed metadata")
		}
	}

	etag, lastModified := res.ETag, res.LastModified
	tr := feedstate.ComputeNextFetch(feed, now, true, res.RetryAfter, nil)
	if err := p.db.MarkFeedRefreshed(feed.ID, now, tr.NextFetchAt, etag, lastModified); err != nil {
		return newCount, fmt.Errorf("mark refreshed: %w", err)
	}

	p.publishRefreshed(feed.ID, newCount)
	p.log.WithFields(logrus.Fields{"feed_id": feed.ID, "new": newCount}).Debug("feed refreshed")
	return newCount, nil
}

// persistArticles inserts the normalized articles, skipping duplicates by
// (feed_id, guid), then runs enrichment for the fresh rows. fetched_at is
// the single ingestion timestamp for the batch, keeping the article
// watermark monotonic per feed.
func (p *Pipeline) persistArticles(ctx context.Context, feed *model.Feed, articles []model.Article, now time.Time) int {
	newCount := 0
	enriched := 0
	for i := range articles {
		a := articles[i]
		a.FeedID = feed.ID
		a.FetchedAt = now
		if a.PublishedAt.IsZero() {
			a.PublishedAt = now
		}
		id, isNew, err := p.db.AddArticle(&a)
		if err != nil {
			// Unexpected storage fault; the duplicate case is already a
			// silent skip inside AddArticle.
			p.log.WithFields(logrus.Fields{"feed_id": feed.ID, "guid": a.GUID}).
				WithError(err).Warn("add article")
			continue
		}
		if !isNew {
			continue
		}
		newCount++
		p.publishCreated(id, feed.ID)

		if a.URL != "" && enriched < readabilityPerRefresh {
			enriched++
			p.enrichReadability(ctx, id, a.URL)
		}
	}
	return newCount
}

// enrichReadability fetches the article page out-of-band and stores the
// extracted body. Failures degrade to the feed-supplied summary; they are
// logged at debug level and never affect the feed's success status.
func (p *Pipeline) enrichReadability(ctx context.Context, articleID int64, pageURL string) {
	rctx, cancel := context.WithTimeout(ctx, readabilityTimeout)
	defer cancel()

	res, err := p.client.Get(rctx, pageURL, fetch.Conditional{})
	if err != nil {
		p.log.WithField("url", pageURL).WithError(err).Debug("readability fetch failed")
		return
	}
	content, err := ExtractReadableContent(string(res.Body))
	if err != nil {
		p.log.WithField("url", pageURL).WithError(err).Debug("readability extract failed")
		return
	}
	if err := p.db.UpdateArticleReadability(articleID, content); err != nil {
		p.log.WithField("article_id", articleID).WithError(err).Debug("readability store failed")
	}
}

// recordFailure persists the failed attempt and returns the original error
// for the caller's log line.
func (p *Pipeline) recordFailure(feed *model.Feed, cause error) error {
	now := p.now().UTC()
	tr := feedstate.ComputeNextFetch(feed, now, false, 0, cause)
	if err := p.db.MarkFeedFailed(feed.ID, now, tr.NextFetchAt, tr.LastError); err != nil {
		p.log.WithField("feed_id", feed.ID).WithError(err).Error("record feed failure")
	}
	return cause
}

func (p *Pipeline) publishRefreshed(feedID int64, newCount int) {
	if p.bus == nil {
		return
	}
	if err := p.bus.PublishFeedRefreshed(events.FeedRefreshed{FeedID: feedID, NewArticles: newCount}); err != nil {
		p.log.WithField("feed_id", feedID).WithError(err).Debug("publish feed.refreshed")
	}
}

func (p *Pipeline) publishCreated(articleID, feedID int64) {
	if p.bus == nil {
		return
	}
	if err := p.bus.PublishArticleCreated(events.ArticleCreated{ArticleID: articleID, FeedID: feedID}); err != nil {
		p.log.WithField("article_id", articleID).WithError(err).Debug("publish article.created")
	}
}
