package database

import (
	"database/sql"
	"time"

	"github.com/bryan-buckman/newsriver/internal/model"
)

// Sync delta queries. All comparisons are strictly greater-than the
// watermark so a row is never double-reported across windows: rows created
// after the watermark appear only as created, never also as updated.

// FeedsCreatedSince returns live feeds created after the watermark.
func (db *DB) FeedsCreatedSince(userID int64, watermark time.Time) ([]model.Feed, error) {
	rows, err := db.conn.Query(`
		SELECT `+feedColumns+` FROM feeds
		WHERE user_id = ? AND deleted_at IS NULL AND created_at > ?
		ORDER BY created_at`, userID, watermark.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

// FeedsUpdatedSince returns live feeds modified after the watermark but
// created at or before it.
func (db *DB) FeedsUpdatedSince(userID int64, watermark time.Time) ([]model.Feed, error) {
	rows, err := db.conn.Query(`
		SELECT `+feedColumns+` FROM feeds
		WHERE user_id = ? AND deleted_at IS NULL AND updated_at > ? AND created_at <= ?
		ORDER BY updated_at`, userID, watermark.UTC(), watermark.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

// FeedsDeletedSince returns tombstone ids for feeds soft-deleted after the
// watermark.
func (db *DB) FeedsDeletedSince(userID int64, watermark time.Time) ([]int64, error) {
	rows, err := db.conn.Query(`
		SELECT id FROM feeds
		WHERE user_id = ? AND deleted_at IS NOT NULL AND deleted_at > ?
		ORDER BY deleted_at`, userID, watermark.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// FoldersCreatedSince returns live folders created after the watermark.
func (db *DB) FoldersCreatedSince(userID int64, watermark time.Time) ([]model.Folder, error) {
	return db.queryFolders(`
		SELECT `+folderColumns+` FROM folders
		WHERE user_id = ? AND deleted_at IS NULL AND created_at > ?
		ORDER BY created_at`, userID, watermark.UTC())
}

// FoldersUpdatedSince returns live folders modified after the watermark but
// created at or before it.
func (db *DB) FoldersUpdatedSince(userID int64, watermark time.Time) ([]model.Folder, error) {
	return db.queryFolders(`
		SELECT `+folderColumns+` FROM folders
		WHERE user_id = ? AND deleted_at IS NULL AND updated_at > ? AND created_at <= ?
		ORDER BY updated_at`, userID, watermark.UTC(), watermark.UTC())
}

// FoldersDeletedSince returns tombstone ids for folders soft-deleted after
// the watermark.
func (db *DB) FoldersDeletedSince(userID int64, watermark time.Time) ([]int64, error) {
	rows, err := db.conn.Query(`
		SELECT id FROM folders
		WHERE user_id = ? AND deleted_at IS NOT NULL AND deleted_at > ?
		ORDER BY deleted_at`, userID, watermark.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ArticlesFetchedSince returns the user's articles ingested after the
// watermark, newest first, capped at limit. Articles are immutable so only
// a created partition exists.
func (db *DB) ArticlesFetchedSince(userID int64, watermark time.Time, limit int) ([]model.Article, error) {
	rows, err := db.conn.Query(`
		SELECT `+prefixedArticleColumns+` FROM articles a
		JOIN feeds f ON a.feed_id = f.id
		WHERE f.user_id = ? AND f.deleted_at IS NULL AND a.fetched_at > ?
		ORDER BY a.fetched_at DESC
		LIMIT ?`, userID, watermark.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ReadStateChangedSince partitions article ids with read-state mutations
// after the watermark into read and unread lists.
func (db *DB) ReadStateChangedSince(userID int64, watermark time.Time) (read, unread []int64, err error) {
	rows, err := db.conn.Query(`
		SELECT article_id, is_read FROM read_state
		WHERE user_id = ? AND updated_at > ?
		ORDER BY updated_at`, userID, watermark.UTC())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var isRead int
		if err := rows.Scan(&id, &isRead); err != nil {
			return nil, nil, err
		}
		if isRead != 0 {
			read = append(read, id)
		} else {
			unread = append(unread, id)
		}
	}
	return read, unread, rows.Err()
}

const prefixedArticleColumns = `a.id, a.feed_id, a.guid, a.title, a.url, a.author,
	a.summary, a.content, a.readability_content, a.enclosure_url, a.enclosure_type,
	a.enclosure_length, a.enclosure_duration, a.thumbnail_url, a.thumbnail_path,
	a.is_bookmarked, a.published_at, a.fetched_at`

func (db *DB) queryFolders(query string, args ...interface{}) ([]model.Folder, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var folders []model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
