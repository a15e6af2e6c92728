package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/bryan-buckman/newsriver/internal/model"
)

// ErrNotOwned is returned when a read-state mutation targets an article
// outside the user's feeds.
var ErrNotOwned = errors.New("article not owned by user")

// UpsertReadState records a read/unread flag for one (user, article) pair.
// Last write wins; updated_at always moves forward so sync deltas see it.
// The article must belong to one of the user's feeds.
func (db *DB) UpsertReadState(userID, articleID int64, isRead bool, at time.Time) error {
	var owned int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM articles a
		JOIN feeds f ON a.feed_id = f.id
		WHERE a.id = ? AND f.user_id = ?`, articleID, userID).Scan(&owned)
	if err != nil {
		return err
	}
	if owned == 0 {
		return ErrNotOwned
	}
	var readAt interface{}
	if isRead {
		readAt = at.UTC()
	}
	_, err = db.conn.Exec(`
		INSERT INTO read_state (user_id, article_id, is_read, read_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, article_id) DO UPDATE SET
			is_read = excluded.is_read,
			read_at = excluded.read_at,
			updated_at = excluded.updated_at`,
		userID, articleID, boolInt(isRead), readAt, at.UTC())
	return err
}

// GetReadState returns the flag for one pair, or nil when never set.
func (db *DB) GetReadState(userID, articleID int64) (*model.ReadState, error) {
	var rs model.ReadState
	var isRead int
	var readAt sql.NullTime
	err := db.conn.QueryRow(`
		SELECT user_id, article_id, is_read, read_at, updated_at
		FROM read_state WHERE user_id = ? AND article_id = ?`, userID, articleID).
		Scan(&rs.UserID, &rs.ArticleID, &isRead, &readAt, &rs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rs.IsRead = isRead != 0
	rs.ReadAt = timePtr(readAt)
	return &rs, nil
}

// MarkAllRead flags every article of a feed as read for the user.
func (db *DB) MarkAllRead(userID, feedID int64, at time.Time) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO read_state (user_id, article_id, is_read, read_at, updated_at)
		SELECT ?, a.id, 1, ?, ? FROM articles a
		JOIN feeds f ON a.feed_id = f.id
		WHERE f.id = ? AND f.user_id = ?
		ON CONFLICT(user_id, article_id) DO UPDATE SET
			is_read = 1, read_at = excluded.read_at, updated_at = excluded.updated_at`,
		userID, at.UTC(), at.UTC(), feedID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
