package database

import (
	"database/sql"
	"strings"
	"time"

	"github.com/bryan-buckman/newsriver/internal/model"
)

// GetRetentionPolicy returns a user's policy, or the defaults when the user
// never saved one.
func (db *DB) GetRetentionPolicy(userID int64) (model.RetentionPolicy, error) {
	p := model.DefaultRetentionPolicy(userID)
	var enabled, keepBookmarked, keepUnread int
	err := db.conn.QueryRow(`
		SELECT enabled, max_age_days, max_per_feed, keep_bookmarked, keep_unread
		FROM retention_settings WHERE user_id = ?`, userID).
		Scan(&enabled, &p.MaxAgeDays, &p.MaxPerFeed, &keepBookmarked, &keepUnread)
	if err == sql.ErrNoRows {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	p.Enabled = enabled != 0
	p.KeepBookmarked = keepBookmarked != 0
	p.KeepUnread = keepUnread != 0
	return p, nil
}

// SaveRetentionPolicy upserts a user's policy.
func (db *DB) SaveRetentionPolicy(p model.RetentionPolicy) error {
	_, err := db.conn.Exec(`
		INSERT INTO retention_settings (user_id, enabled, max_age_days, max_per_feed, keep_bookmarked, keep_unread)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			enabled = excluded.enabled,
			max_age_days = excluded.max_age_days,
			max_per_feed = excluded.max_per_feed,
			keep_bookmarked = excluded.keep_bookmarked,
			keep_unread = excluded.keep_unread`,
		p.UserID, boolInt(p.Enabled), p.MaxAgeDays, p.MaxPerFeed,
		boolInt(p.KeepBookmarked), boolInt(p.KeepUnread))
	return err
}

// retentionFilter builds the exemption clause shared by the age and cap
// passes. When exemptUnread is set the caller must append the user id to
// the query arguments.
func retentionFilter(exemptBookmarked, exemptUnread bool) string {
	var clauses []string
	if exemptBookmarked {
		clauses = append(clauses, "is_bookmarked = 0")
	}
	if exemptUnread {
		clauses = append(clauses, "id IN (SELECT article_id FROM read_state WHERE user_id = ? AND is_read = 1)")
	}
	if len(clauses) == 0 {
		return ""
	}
	return " AND " + strings.Join(clauses, " AND ")
}

// DeleteArticlesByAge removes a feed's articles fetched before the cutoff,
// honoring the exemptions. Returns rows deleted.
func (db *DB) DeleteArticlesByAge(userID, feedID int64, cutoff time.Time, exemptBookmarked, exemptUnread bool) (int64, error) {
	filter := retentionFilter(exemptBookmarked, exemptUnread)
	args := []interface{}{feedID, cutoff.UTC()}
	if exemptUnread {
		args = append(args, userID)
	}
	res, err := db.conn.Exec("DELETE FROM articles WHERE feed_id = ? AND fetched_at < ?"+filter, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountArticlesByAge is the preview counterpart of DeleteArticlesByAge.
func (db *DB) CountArticlesByAge(userID, feedID int64, cutoff time.Time, exemptBookmarked, exemptUnread bool) (int64, error) {
	filter := retentionFilter(exemptBookmarked, exemptUnread)
	args := []interface{}{feedID, cutoff.UTC()}
	if exemptUnread {
		args = append(args, userID)
	}
	var n int64
	err := db.conn.QueryRow("SELECT COUNT(*) FROM articles WHERE feed_id = ? AND fetched_at < ?"+filter, args...).Scan(&n)
	return n, err
}

// DeleteArticlesOverCap keeps a feed's `keep` most recent articles and
// removes the non-exempt overflow. Returns rows deleted.
func (db *DB) DeleteArticlesOverCap(userID, feedID int64, keep int, exemptBookmarked, exemptUnread bool) (int64, error) {
	filter := retentionFilter(exemptBookmarked, exemptUnread)
	args := []interface{}{feedID, keep}
	if exemptUnread {
		args = append(args, userID)
	}
	res, err := db.conn.Exec(`
		DELETE FROM articles WHERE id IN (
			SELECT id FROM articles WHERE feed_id = ?
			ORDER BY published_at DESC, id DESC LIMIT -1 OFFSET ?
		)`+filter, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UserIDs returns every user owning at least one live feed.
func (db *DB) UserIDs() ([]int64, error) {
	rows, err := db.conn.Query("SELECT DISTINCT user_id FROM feeds WHERE deleted_at IS NULL ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// CountArticlesOverCap is the preview counterpart of DeleteArticlesOverCap.
func (db *DB) CountArticlesOverCap(userID, feedID int64, keep int, exemptBookmarked, exemptUnread bool) (int64, error) {
	filter := retentionFilter(exemptBookmarked, exemptUnread)
	args := []interface{}{feedID, keep}
	if exemptUnread {
		args = append(args, userID)
	}
	var n int64
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM articles WHERE id IN (
			SELECT id FROM articles WHERE feed_id = ?
			ORDER BY published_at DESC, id DESC LIMIT -1 OFFSET ?
		)`+filter, args...).Scan(&n)
	return n, err
}
