package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/bryan-buckman/newsriver/internal/model"
)

const feedColumns = `id, user_id, folder_id, type, url, title, site_url,
	icon_url, icon_path, icon_type, refresh_interval_minutes,
	etag, last_modified, last_fetched_at, next_fetch_at,
	error_count, last_error, last_error_at, paused_at,
	created_at, updated_at, deleted_at`

// CreateFeed inserts a new subscription. Returns the ID.
func (db *DB) CreateFeed(f *model.Feed) (int64, error) {
	now := time.Now().UTC()
	res, err := db.conn.Exec(`
		INSERT INTO feeds (user_id, folder_id, type, url, title, site_url, icon_url,
			refresh_interval_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.UserID, f.FolderID, string(f.Type), f.URL, f.Title, f.SiteURL, f.IconURL,
		f.RefreshIntervalMinutes, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetFeedByID returns one feed, including soft-deleted rows.
func (db *DB) GetFeedByID(feedID int64) (*model.Feed, error) {
	row := db.conn.QueryRow("SELECT "+feedColumns+" FROM feeds WHERE id = ?", feedID)
	return scanFeed(row)
}

// GetFeedByURL finds a user's feed by canonical URL.
func (db *DB) GetFeedByURL(userID int64, url string) (*model.Feed, error) {
	row := db.conn.QueryRow("SELECT "+feedColumns+" FROM feeds WHERE user_id = ? AND url = ?", userID, url)
	return scanFeed(row)
}

// GetFeedsByUser returns a user's live feeds ordered by title.
func (db *DB) GetFeedsByUser(userID int64) ([]model.Feed, error) {
	rows, err := db.conn.Query("SELECT "+feedColumns+" FROM feeds WHERE user_id = ? AND deleted_at IS NULL ORDER BY title", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

// DueFeeds selects feeds eligible for the current tick: live, not paused,
// under the error ceiling, and past (or missing) their next-fetch time.
// Oldest-due first, capped at limit.
func (db *DB) DueFeeds(now time.Time, limit int) ([]model.Feed, error) {
	rows, err := db.conn.Query(`
		SELECT `+feedColumns+` FROM feeds
		WHERE deleted_at IS NULL
		  AND paused_at IS NULL
		  AND error_count < ?
		  AND (next_fetch_at IS NULL OR next_fetch_at <= ?)
		ORDER BY next_fetch_at ASC
		LIMIT ?`,
		model.ErrorCeiling, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

// MarkFeedRefreshed records a successful fetch: error state resets, the
// next-fetch time advances, and the conditional-fetch validators are stored.
func (db *DB) MarkFeedRefreshed(feedID int64, fetchedAt, nextFetchAt time.Time, etag, lastModified string) error {
	_, err := db.conn.Exec(`
		UPDATE feeds SET last_fetched_at = ?, next_fetch_at = ?,
			error_count = 0, last_error = '', last_error_at = NULL,
			etag = ?, last_modified = ?, updated_at = ?
		WHERE id = ?`,
		fetchedAt.UTC(), nextFetchAt.UTC(), etag, lastModified, fetchedAt.UTC(), feedID)
	return err
}

// MarkFeedFailed records a failed fetch attempt. The next-fetch time still
// advances; once error_count reaches the ceiling the due query stops
// selecting the feed.
func (db *DB) MarkFeedFailed(feedID int64, failedAt, nextFetchAt time.Time, message string) error {
	if len(message) > 200 {
		message = message[:200]
	}
	_, err := db.conn.Exec(`
		UPDATE feeds SET next_fetch_at = ?, error_count = error_count + 1,
			last_error = ?, last_error_at = ?, updated_at = ?
		WHERE id = ?`,
		nextFetchAt.UTC(), message, failedAt.UTC(), failedAt.UTC(), feedID)
	return err
}

// ApplyFeedMetadata patches the display fields discovered during
// normalization. Empty values leave the current value untouched.
func (db *DB) ApplyFeedMetadata(feedID int64, title, siteURL, iconURL string) error {
	_, err := db.conn.Exec(`
		UPDATE feeds SET
			title = CASE WHEN ? != '' THEN ? ELSE title END,
			site_url = CASE WHEN ? != '' THEN ? ELSE site_url END,
			icon_url = CASE WHEN ? != '' THEN ? ELSE icon_url END,
			updated_at = ?
		WHERE id = ?`,
		title, title, siteURL, siteURL, iconURL, iconURL, time.Now().UTC(), feedID)
	return err
}

// UpdateFeedIcon records the locally cached icon for a feed.
func (db *DB) UpdateFeedIcon(feedID int64, path, contentType string) error {
	_, err := db.conn.Exec("UPDATE feeds SET icon_path = ?, icon_type = ?, updated_at = ? WHERE id = ?",
		path, contentType, time.Now().UTC(), feedID)
	return err
}

// PauseFeed soft-toggles a feed out of scheduling.
func (db *DB) PauseFeed(feedID int64) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec("UPDATE feeds SET paused_at = ?, updated_at = ? WHERE id = ? AND paused_at IS NULL", now, now, feedID)
	return err
}

// ResumeFeed re-enters a feed into scheduling. The error count resets (this
// is the only way out of the open-circuit state besides a manual refresh
// that succeeds) and the feed becomes immediately due.
func (db *DB) ResumeFeed(feedID int64) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec(`
		UPDATE feeds SET paused_at = NULL, error_count = 0, last_error = '',
			last_error_at = NULL, next_fetch_at = NULL, updated_at = ?
		WHERE id = ?`, now, feedID)
	return err
}

// SoftDeleteFeed marks a feed deleted. Rows stay behind for sync tombstones;
// only an explicit admin purge removes them.
func (db *DB) SoftDeleteFeed(feedID int64) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec("UPDATE feeds SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL", now, now, feedID)
	return err
}

// PurgeDeletedFeeds hard-deletes feeds soft-deleted before the cutoff,
// cascading to their articles. Returns the number of feeds removed.
func (db *DB) PurgeDeletedFeeds(cutoff time.Time) (int64, error) {
	res, err := db.conn.Exec("DELETE FROM feeds WHERE deleted_at IS NOT NULL AND deleted_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(row rowScanner) (*model.Feed, error) {
	var f model.Feed
	var feedType string
	var lastFetched, nextFetch, lastErrorAt, pausedAt, deletedAt sql.NullTime
	err := row.Scan(&f.ID, &f.UserID, &f.FolderID, &feedType, &f.URL, &f.Title, &f.SiteURL,
		&f.IconURL, &f.IconPath, &f.IconType, &f.RefreshIntervalMinutes,
		&f.ETag, &f.LastModified, &lastFetched, &nextFetch,
		&f.ErrorCount, &f.LastError, &lastErrorAt, &pausedAt,
		&f.CreatedAt, &f.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	f.Type = model.FeedType(feedType)
	f.LastFetchedAt = timePtr(lastFetched)
	f.NextFetchAt = timePtr(nextFetch)
	f.LastErrorAt = timePtr(lastErrorAt)
	f.PausedAt = timePtr(pausedAt)
	f.DeletedAt = timePtr(deletedAt)
	return &f, nil
}

func scanFeeds(rows *sql.Rows) ([]model.Feed, error) {
	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

// IsNotFound reports whether err is a missing-row lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
