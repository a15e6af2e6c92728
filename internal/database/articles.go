package database

import (
	"database/sql"

	"github.com/bryan-buckman/newsriver/internal/model"
)

const articleColumns = `id, feed_id, guid, title, url, author, summary, content,
	readability_content, enclosure_url, enclosure_type, enclosure_length,
	enclosure_duration, thumbnail_url, thumbnail_path, is_bookmarked,
	published_at, fetched_at`

// AddArticle inserts an article unless its (feed_id, guid) already exists.
// Returns the ID and whether the row was new; a duplicate is a skip, not an
// error.
func (db *DB) AddArticle(a *model.Article) (int64, bool, error) {
	res, err := db.conn.Exec(`
		INSERT INTO articles (feed_id, guid, title, url, author, summary, content,
			readability_content, enclosure_url, enclosure_type, enclosure_length,
			enclosure_duration, thumbnail_url, published_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, guid) DO NOTHING`,
		a.FeedID, a.GUID, a.Title, a.URL, a.Author, a.Summary, a.Content,
		a.ReadabilityContent, a.Enclosure.URL, a.Enclosure.Type, a.Enclosure.Length,
		a.Enclosure.Duration, a.ThumbnailURL, a.PublishedAt.UTC(), a.FetchedAt.UTC())
	if err != nil {
		return 0, false, err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return 0, false, nil
	}
	id, _ := res.LastInsertId()
	return id, true, nil
}

// GetArticleByID returns one article.
func (db *DB) GetArticleByID(articleID int64) (*model.Article, error) {
	row := db.conn.QueryRow("SELECT "+articleColumns+" FROM articles WHERE id = ?", articleID)
	return scanArticle(row)
}

// GetArticlesByFeed returns a feed's articles, newest first.
func (db *DB) GetArticlesByFeed(feedID int64, limit int) ([]model.Article, error) {
	rows, err := db.conn.Query("SELECT "+articleColumns+" FROM articles WHERE feed_id = ? ORDER BY published_at DESC LIMIT ?", feedID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// UpdateArticleReadability fills in the asynchronously extracted full-text
// content. Articles are otherwise immutable after insert.
func (db *DB) UpdateArticleReadability(articleID int64, content string) error {
	_, err := db.conn.Exec("UPDATE articles SET readability_content = ? WHERE id = ?", content, articleID)
	return err
}

// UpdateArticleThumbnail records the locally cached thumbnail.
func (db *DB) UpdateArticleThumbnail(articleID int64, path string) error {
	_, err := db.conn.Exec("UPDATE articles SET thumbnail_path = ? WHERE id = ?", path, articleID)
	return err
}

// SetArticleBookmarked toggles the bookmark flag. Bookmarked articles are
// exempt from every retention pass, so the article must belong to one of
// the user's feeds; anything else reports ErrNotOwned.
func (db *DB) SetArticleBookmarked(userID, articleID int64, bookmarked bool) error {
	res, err := db.conn.Exec(`
		UPDATE articles SET is_bookmarked = ?
		WHERE id = ? AND feed_id IN (SELECT id FROM feeds WHERE user_id = ?)`,
		boolInt(bookmarked), articleID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotOwned
	}
	return nil
}

// ArticlesMissingThumbnails returns recent articles of a feed that declare a
// remote thumbnail not yet cached locally.
func (db *DB) ArticlesMissingThumbnails(feedID int64, limit int) ([]model.Article, error) {
	rows, err := db.conn.Query(`
		SELECT `+articleColumns+` FROM articles
		WHERE feed_id = ? AND thumbnail_url != '' AND thumbnail_path = ''
		ORDER BY fetched_at DESC LIMIT ?`, feedID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

func scanArticle(row rowScanner) (*model.Article, error) {
	var a model.Article
	var published, fetched sql.NullTime
	var bookmarked int
	err := row.Scan(&a.ID, &a.FeedID, &a.GUID, &a.Title, &a.URL, &a.Author, &a.Summary, &a.Content,
		&a.ReadabilityContent, &a.Enclosure.URL, &a.Enclosure.Type, &a.Enclosure.Length,
		&a.Enclosure.Duration, &a.ThumbnailURL, &a.ThumbnailPath, &bookmarked,
		&published, &fetched)
	if err != nil {
		return nil, err
	}
	a.IsBookmarked = bookmarked != 0
	if published.Valid {
		a.PublishedAt = published.Time
	}
	if fetched.Valid {
		a.FetchedAt = fetched.Time
	}
	return &a, nil
}

func scanArticles(rows *sql.Rows) ([]model.Article, error) {
	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
