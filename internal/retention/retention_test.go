package retention

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/newsriver/internal/database"
	"github.com/bryan-buckman/newsriver/internal/model"
)

func newTestEngine(t *testing.T) (*Engine, *database.DB) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewEngine(db, logrus.NewEntry(logger)), db
}

func seedFeed(t *testing.T, db *database.DB, userID int64, url string, feedType model.FeedType) int64 {
	t.Helper()
	id, err := db.CreateFeed(&model.Feed{
		UserID: userID, Type: feedType, URL: url,
		Title: url, RefreshIntervalMinutes: 60,
	})
	require.NoError(t, err)
	return id
}

func seedArticle(t *testing.T, db *database.DB, feedID int64, guid string, age time.Duration) int64 {
	t.Helper()
	at := time.Now().UTC().Add(-age)
	id, isNew, err := db.AddArticle(&model.Article{
		FeedID: feedID, GUID: guid, Title: guid,
		PublishedAt: at, FetchedAt: at,
	})
	require.NoError(t, err)
	require.True(t, isNew)
	return id
}

func TestEnforceTypeCapDeletesAgedForumPosts(t *testing.T) {
	engine, db := newTestEngine(t)
	feedID := seedFeed(t, db, 1, "https://forum.example.com/feed", model.FeedTypeForum)

	day := 24 * time.Hour
	seedArticle(t, db, feedID, "ancient-1", 90*day)
	seedArticle(t, db, feedID, "ancient-2", 70*day)
	bookmarked := seedArticle(t, db, feedID, "ancient-kept", 90*day)
	fresh := seedArticle(t, db, feedID, "fresh", 5*day)
	require.NoError(t, db.SetArticleBookmarked(1, bookmarked, true))

	// User policy stays disabled; only the forum type cap applies, and
	// bookmarks survive it.
	report, err := engine.Enforce(1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, report.ArticlesDeleted)

	_, err = db.GetArticleByID(bookmarked)
	require.NoError(t, err)
	_, err = db.GetArticleByID(fresh)
	require.NoError(t, err)
}

func TestEnforceTypeCapIgnoresUnreadExemption(t *testing.T) {
	engine, db := newTestEngine(t)
	feedID := seedFeed(t, db, 1, "https://forum.example.com/feed", model.FeedTypeForum)

	day := 24 * time.Hour
	unreadOld := seedArticle(t, db, feedID, "unread-old", 90*day)

	// Even with the user policy asking to keep unread, the type cap does
	// not honor that exemption.
	policy := model.DefaultRetentionPolicy(1)
	policy.Enabled = true
	policy.MaxAgeDays = 365
	policy.MaxPerFeed = 0
	policy.KeepUnread = true
	require.NoError(t, db.SaveRetentionPolicy(policy))

	report, err := engine.Enforce(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.ArticlesDeleted)
	_, err = db.GetArticleByID(unreadOld)
	assert.True(t, database.IsNotFound(err))
}

func TestEnforceUserPolicyKeepsUnread(t *testing.T) {
	engine, db := newTestEngine(t)
	// Web type cap is 180 days; these articles are younger, so only the
	// user policy can touch them.
	feedID := seedFeed(t, db, 1, "https://blog.example.com/feed", model.FeedTypeWeb)

	day := 24 * time.Hour
	readOld := seedArticle(t, db, feedID, "read-old", 40*day)
	unreadOld := seedArticle(t, db, feedID, "unread-old", 40*day)
	require.NoError(t, db.UpsertReadState(1, readOld, true, time.Now().UTC()))

	policy := model.DefaultRetentionPolicy(1)
	policy.Enabled = true
	policy.MaxAgeDays = 30
	policy.MaxPerFeed = 0
	policy.KeepBookmarked = true
	policy.KeepUnread = true
	require.NoError(t, db.SaveRetentionPolicy(policy))

	report, err := engine.Enforce(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.ArticlesDeleted)

	_, err = db.GetArticleByID(readOld)
	assert.True(t, database.IsNotFound(err))
	_, err = db.GetArticleByID(unreadOld)
	require.NoError(t, err)
}

func TestPreviewCountsWithoutDeleting(t *testing.T) {
	engine, db := newTestEngine(t)
	feedID := seedFeed(t, db, 1, "https://forum.example.com/feed", model.FeedTypeForum)

	day := 24 * time.Hour
	seedArticle(t, db, feedID, "old-1", 90*day)
	seedArticle(t, db, feedID, "old-2", 70*day)
	seedArticle(t, db, feedID, "fresh", day)

	preview, err := engine.Preview(1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, preview.PolicyArticles)
	assert.EqualValues(t, 2, preview.TypeCapArticles)

	// Nothing was deleted.
	articles, err := db.GetArticlesByFeed(feedID, 10)
	require.NoError(t, err)
	assert.Len(t, articles, 3)
}

func TestEnforceAllCoversEveryUser(t *testing.T) {
	engine, db := newTestEngine(t)
	day := 24 * time.Hour

	feedA := seedFeed(t, db, 1, "https://a.example.com/feed", model.FeedTypeForum)
	feedB := seedFeed(t, db, 2, "https://b.example.com/feed", model.FeedTypeForum)
	seedArticle(t, db, feedA, "old-a", 90*day)
	seedArticle(t, db, feedB, "old-b", 90*day)

	engine.EnforceAll()

	articlesA, err := db.GetArticlesByFeed(feedA, 10)
	require.NoError(t, err)
	articlesB, err := db.GetArticlesByFeed(feedB, 10)
	require.NoError(t, err)
	assert.Empty(t, articlesA)
	assert.Empty(t, articlesB)
}
