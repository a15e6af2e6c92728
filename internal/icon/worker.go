package icon

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bryan-buckman/newsriver/internal/database"
	"github.com/bryan-buckman/newsriver/internal/events"
)

// thumbnailsPerEvent caps thumbnail downloads triggered by one refresh.
const thumbnailsPerEvent = 10

// Worker consumes feed.refreshed events and fills in missing icons and
// article thumbnails asynchronously. Asset failures degrade quality only;
// they never touch the feed's error state.
type Worker struct {
	db    *database.DB
	cache *Cache
	bus   *events.Bus
	log   *logrus.Entry
}

// NewWorker wires the async fill-in path.
func NewWorker(db *database.DB, cache *Cache, bus *events.Bus, log *logrus.Entry) *Worker {
	return &Worker{db: db, cache: cache, bus: bus, log: log}
}

// Run consumes events until the context is cancelled or the bus closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.bus.SubscribeFeedRefreshed(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		ev, err := events.DecodeFeedRefreshed(msg)
		if err != nil {
			w.log.WithError(err).Warn("malformed feed.refreshed event")
			msg.Ack()
			continue
		}
		w.fill(ctx, ev.FeedID)
		msg.Ack()
	}
	return nil
}

func (w *Worker) fill(ctx context.Context, feedID int64) {
	feed, err := w.db.GetFeedByID(feedID)
	if err != nil {
		w.log.WithField("feed_id", feedID).WithError(err).Warn("load feed for asset fill")
		return
	}

	if feed.IconURL != "" && feed.IconPath == "" {
		name, contentType, err := w.cache.Ensure(ctx, feed.IconURL)
		if err != nil {
			w.log.WithFields(logrus.Fields{"feed_id": feedID, "url": feed.IconURL}).
				WithError(err).Debug("icon fill failed")
		} else if err := w.db.UpdateFeedIcon(feedID, name, contentType); err != nil {
			w.log.WithField("feed_id", feedID).WithError(err).Warn("store icon path")
		}
	}

	articles, err := w.db.ArticlesMissingThumbnails(feedID, thumbnailsPerEvent)
	if err != nil {
		w.log.WithField("feed_id", feedID).WithError(err).Warn("list missing thumbnails")
		return
	}
	for _, a := range articles {
		name, _, err := w.cache.Ensure(ctx, a.ThumbnailURL)
		if err != nil {
			w.log.WithFields(logrus.Fields{"article_id": a.ID, "url": a.ThumbnailURL}).
				WithError(err).Debug("thumbnail fill failed")
			continue
		}
		if err := w.db.UpdateArticleThumbnail(a.ID, name); err != nil {
			w.log.WithField("article_id", a.ID).WithError(err).Warn("store thumbnail path")
		}
	}
}
