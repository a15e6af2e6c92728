// Package retention bounds storage growth by deleting excess and aged
// articles while protecting bookmarked and unread items.
package retention

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryan-buckman/newsriver/internal/database"
	"github.com/bryan-buckman/newsriver/internal/model"
)

const (
	// compactionRowThreshold is the deletion count past which a run
	// triggers a storage rewrite.
	compactionRowThreshold = 1000
	// compactionFragThreshold is the fragmentation ratio below which
	// explicit compaction is only suggested, not performed.
	compactionFragThreshold = 0.10
)

// Report is the outcome of one enforcement run.
type Report struct {
	ArticlesDeleted int64 `json:"articles_deleted"`
	BytesReclaimed  int64 `json:"bytes_reclaimed"`
	Compacted       bool  `json:"compacted"`
}

// Preview estimates a run without deleting anything.
type Preview struct {
	PolicyArticles  int64 `json:"policy_articles"`
	TypeCapArticles int64 `json:"type_cap_articles"`
}

// Engine enforces the per-user policy and the fixed type-aware caps.
type Engine struct {
	db  *database.DB
	log *logrus.Entry
	now func() time.Time
}

// NewEngine builds a retention engine.
func NewEngine(db *database.DB, log *logrus.Entry) *Engine {
	return &Engine{db: db, log: log, now: time.Now}
}

// Enforce applies the user's policy and then the type caps. Deletes run as
// discrete per-feed statements; a failure partway is logged and skipped so
// the rest of the batch still takes effect.
func (e *Engine) Enforce(userID int64) (*Report, error) {
	policy, err := e.db.GetRetentionPolicy(userID)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	feeds, err := e.db.GetFeedsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}

	report := &Report{}
	now := e.now().UTC()

	if policy.Enabled {
		cutoff := now.AddDate(0, 0, -policy.MaxAgeDays)
		for _, feed := range feeds {
			if policy.MaxAgeDays > 0 {
				n, err := e.db.DeleteArticlesByAge(userID, feed.ID, cutoff, policy.KeepBookmarked, policy.KeepUnread)
				if err != nil {
					e.log.WithField("feed_id", feed.ID).WithError(err).Warn("age retention pass")
				} else {
					report.ArticlesDeleted += n
				}
			}
			if policy.MaxPerFeed > 0 {
				n, err := e.db.DeleteArticlesOverCap(userID, feed.ID, policy.MaxPerFeed, policy.KeepBookmarked, policy.KeepUnread)
				if err != nil {
					e.log.WithField("feed_id", feed.ID).WithError(err).Warn("count retention pass")
				} else {
					report.ArticlesDeleted += n
				}
			}
		}
	}

	// Type-aware hard caps run regardless of the user policy. Bookmarks
	// stay exempt; the unread exemption does not apply here.
	for _, feed := range feeds {
		tc, ok := model.TypeCaps[feed.Type]
		if !ok {
			continue
		}
		if tc.MaxAgeDays > 0 {
			cutoff := now.AddDate(0, 0, -tc.MaxAgeDays)
			n, err := e.db.DeleteArticlesByAge(userID, feed.ID, cutoff, true, false)
			if err != nil {
				e.log.WithField("feed_id", feed.ID).WithError(err).Warn("type age cap")
			} else {
				report.ArticlesDeleted += n
			}
		}
		if tc.MaxPerFeed > 0 {
			n, err := e.db.DeleteArticlesOverCap(userID, feed.ID, tc.MaxPerFeed, true, false)
			if err != nil {
				e.log.WithField("feed_id", feed.ID).WithError(err).Warn("type count cap")
			} else {
				report.ArticlesDeleted += n
			}
		}
	}

	if report.ArticlesDeleted >= compactionRowThreshold {
		reclaimed, elapsed, err := e.db.Vacuum()
		if err != nil {
			e.log.WithError(err).Warn("post-retention compaction")
		} else {
			report.BytesReclaimed = reclaimed
			report.Compacted = true
			e.log.WithFields(logrus.Fields{"bytes": reclaimed, "elapsed": elapsed}).
				Info("storage compacted after retention run")
		}
	}
	return report, nil
}

// EnforceAll runs retention for every user with feeds.
func (e *Engine) EnforceAll() {
	users, err := e.db.UserIDs()
	if err != nil {
		e.log.WithError(err).Error("list users for retention")
		return
	}
	for _, userID := range users {
		report, err := e.Enforce(userID)
		if err != nil {
			e.log.WithField("user_id", userID).WithError(err).Error("retention run")
			continue
		}
		if report.ArticlesDeleted > 0 {
			e.log.WithFields(logrus.Fields{"user_id": userID, "deleted": report.ArticlesDeleted}).
				Info("retention pass complete")
		}
	}
}

// Preview computes what Enforce would delete, without deleting. The two
// figures mirror the run's passes; a row matching both is deleted once by
// the real run but counted in its first matching pass here.
func (e *Engine) Preview(userID int64) (*Preview, error) {
	policy, err := e.db.GetRetentionPolicy(userID)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	feeds, err := e.db.GetFeedsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}

	preview := &Preview{}
	now := e.now().UTC()

	if policy.Enabled {
		cutoff := now.AddDate(0, 0, -policy.MaxAgeDays)
		for _, feed := range feeds {
			if policy.MaxAgeDays > 0 {
				n, err := e.db.CountArticlesByAge(userID, feed.ID, cutoff, policy.KeepBookmarked, policy.KeepUnread)
				if err != nil {
					return nil, fmt.Errorf("preview age pass: %w", err)
				}
				preview.PolicyArticles += n
			}
			if policy.MaxPerFeed > 0 {
				n, err := e.db.CountArticlesOverCap(userID, feed.ID, policy.MaxPerFeed, policy.KeepBookmarked, policy.KeepUnread)
				if err != nil {
					return nil, fmt.Errorf("preview count pass: %w", err)
				}
				preview.PolicyArticles += n
			}
		}
	}

	for _, feed := range feeds {
		tc, ok := model.TypeCaps[feed.Type]
		if !ok {
			continue
		}
		if tc.MaxAgeDays > 0 {
			cutoff := now.AddDate(0, 0, -tc.MaxAgeDays)
			n, err := e.db.CountArticlesByAge(userID, feed.ID, cutoff, true, false)
			if err != nil {
				return nil, fmt.Errorf("preview type age cap: %w", err)
			}
			preview.TypeCapArticles += n
		}
		if tc.MaxPerFeed > 0 {
			n, err := e.db.CountArticlesOverCap(userID, feed.ID, tc.MaxPerFeed, true, false)
			if err != nil {
				return nil, fmt.Errorf("preview type count cap: %w", err)
			}
			preview.TypeCapArticles += n
		}
	}
	return preview, nil
}

// CompactionFragThreshold exposes the suggestion threshold to the
// maintenance surface.
func CompactionFragThreshold() float64 { return compactionFragThreshold }
