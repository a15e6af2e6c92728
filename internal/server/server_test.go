package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/newsriver/internal/database"
	"github.com/bryan-buckman/newsriver/internal/fetch"
	"github.com/bryan-buckman/newsriver/internal/icon"
	"github.com/bryan-buckman/newsriver/internal/ingest"
	"github.com/bryan-buckman/newsriver/internal/model"
	"github.com/bryan-buckman/newsriver/internal/retention"
	"github.com/bryan-buckman/newsriver/internal/syncsvc"
)

func newTestServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	log := logrus.NewEntry(logger)

	client := fetch.New(fetch.Config{Retries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, log)
	pipeline := ingest.NewPipeline(db, client, nil, log)
	icons, err := icon.NewCache(t.TempDir(), client, log)
	require.NoError(t, err)

	return New(db, client, pipeline, syncsvc.NewService(db, log),
		retention.NewEngine(db, log), icons, log), db
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func seedFeed(t *testing.T, db *database.DB, userID int64, url string) int64 {
	t.Helper()
	id, err := db.CreateFeed(&model.Feed{
		UserID: userID, Type: model.FeedTypeWeb, URL: url,
		Title: url, RefreshIntervalMinutes: 60,
	})
	require.NoError(t, err)
	return id
}

func TestSyncEndpoint(t *testing.T) {
	srv, db := newTestServer(t)
	seedFeed(t, db, 1, "https://example.com/feed.xml")

	rec := doJSON(t, srv, http.MethodGet, "/api/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp syncsvc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.NextCursor)
	require.NotNil(t, resp.Changes.Feeds)
	assert.Len(t, resp.Changes.Feeds.Created, 1)

	// A garbage cursor degrades to a full resync instead of an error.
	rec = doJSON(t, srv, http.MethodGet, "/api/sync?cursor=garbage&include=feeds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Changes.Feeds.Created, 1)
	assert.Nil(t, resp.Changes.Articles)
}

func TestSyncPushEndpoint(t *testing.T) {
	srv, db := newTestServer(t)
	feedID := seedFeed(t, db, 1, "https://example.com/feed.xml")
	now := time.Now().UTC()
	articleID, _, err := db.AddArticle(&model.Article{
		FeedID: feedID, GUID: "a1", Title: "hello",
		PublishedAt: now, FetchedAt: now,
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/sync/push", map[string]interface{}{
		"read_state": []map[string]interface{}{
			{"article_id": articleID, "is_read": true},
			{"article_id": 424242, "is_read": true},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result syncsvc.PushResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, result.Rejected)
}

func TestSubscribeValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/feeds/", map[string]string{"type": "web"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/feeds/", map[string]string{
		"url": "https://example.com/feed.xml", "type": "newspaper",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscribeConflict(t *testing.T) {
	srv, db := newTestServer(t)
	seedFeed(t, db, 1, "https://example.com/feed.xml")

	rec := doJSON(t, srv, http.MethodPost, "/api/feeds/", map[string]string{
		"url": "https://example.com/feed.xml",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFeedOwnershipHidesForeignFeeds(t *testing.T) {
	srv, db := newTestServer(t)
	foreign := seedFeed(t, db, 2, "https://theirs.example.com/feed.xml")

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/feeds/%d/pause", foreign), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPauseResumeLifecycle(t *testing.T) {
	srv, db := newTestServer(t)
	feedID := seedFeed(t, db, 1, "https://example.com/feed.xml")

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/feeds/%d/pause", feedID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	feed, err := db.GetFeedByID(feedID)
	require.NoError(t, err)
	assert.True(t, feed.Paused())

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/feeds/%d/resume", feedID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	feed, err = db.GetFeedByID(feedID)
	require.NoError(t, err)
	assert.False(t, feed.Paused())
}

func TestReadEndpointRejectsForeignArticle(t *testing.T) {
	srv, db := newTestServer(t)
	foreign := seedFeed(t, db, 2, "https://theirs.example.com/feed.xml")
	now := time.Now().UTC()
	articleID, _, err := db.AddArticle(&model.Article{
		FeedID: foreign, GUID: "a1", Title: "x",
		PublishedAt: now, FetchedAt: now,
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/articles/%d/read", articleID),
		map[string]bool{"is_read": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookmarkToggle(t *testing.T) {
	srv, db := newTestServer(t)
	feedID := seedFeed(t, db, 1, "https://example.com/feed.xml")
	now := time.Now().UTC()
	articleID, _, err := db.AddArticle(&model.Article{
		FeedID: feedID, GUID: "a1", Title: "x",
		PublishedAt: now, FetchedAt: now,
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/articles/%d/bookmark", articleID),
		map[string]bool{"bookmarked": true})
	require.Equal(t, http.StatusOK, rec.Code)

	article, err := db.GetArticleByID(articleID)
	require.NoError(t, err)
	assert.True(t, article.IsBookmarked)
}

func TestBookmarkEndpointRejectsForeignArticle(t *testing.T) {
	srv, db := newTestServer(t)
	foreign := seedFeed(t, db, 2, "https://theirs.example.com/feed.xml")
	now := time.Now().UTC()
	articleID, _, err := db.AddArticle(&model.Article{
		FeedID: foreign, GUID: "a1", Title: "x",
		PublishedAt: now, FetchedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, db.SetArticleBookmarked(2, articleID, true))

	// Clearing another user's bookmark would strip its retention
	// exemption; the caller must see the article as nonexistent.
	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/articles/%d/bookmark", articleID),
		map[string]bool{"bookmarked": false})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	article, err := db.GetArticleByID(articleID)
	require.NoError(t, err)
	assert.True(t, article.IsBookmarked)
}

func TestRetentionPolicyEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/retention/", map[string]interface{}{
		"enabled": true, "max_age_days": -1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPut, "/api/retention/", map[string]interface{}{
		"enabled": true, "max_age_days": 30, "max_per_feed": 200,
		"keep_bookmarked": true, "keep_unread": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/retention/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var policy model.RetentionPolicy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &policy))
	assert.True(t, policy.Enabled)
	assert.Equal(t, 30, policy.MaxAgeDays)
}

func TestMaintenanceStats(t *testing.T) {
	srv, db := newTestServer(t)
	seedFeed(t, db, 1, "https://example.com/feed.xml")

	rec := doJSON(t, srv, http.MethodGet, "/api/maintenance/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload, "stats")
	assert.Contains(t, payload, "compaction_advised")
}

func TestIconFallsBackToRemoteRedirect(t *testing.T) {
	srv, db := newTestServer(t)
	feedID := seedFeed(t, db, 1, "https://example.com/feed.xml")
	require.NoError(t, db.ApplyFeedMetadata(feedID, "", "", "https://example.com/favicon.ico"))

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/icons/%d", feedID), nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/favicon.ico", rec.Header().Get("Location"))

	// No icon anywhere is a 404, not an error.
	bareID := seedFeed(t, db, 1, "https://bare.example.com/feed.xml")
	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/icons/%d", bareID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOPMLImportExport(t *testing.T) {
	srv, db := newTestServer(t)

	opmlDoc := `<?xml version="1.0"?><opml version="2.0"><body>
		<outline text="Tech">
			<outline text="Dev Blog" type="rss" xmlUrl="https://dev.example.com/rss" feedType="web"/>
		</outline>
		<outline text="Weekly Pod" type="rss" xmlUrl="https://pod.example.com/rss" feedType="audio"/>
	</body></opml>`

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("opml", "subs.opml")
	require.NoError(t, err)
	_, err = part.Write([]byte(opmlDoc))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/opml/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	feeds, err := db.GetFeedsByUser(1)
	require.NoError(t, err)
	require.Len(t, feeds, 2)

	// Re-importing the same file creates nothing new.
	var buf2 bytes.Buffer
	mw2 := multipart.NewWriter(&buf2)
	part2, err := mw2.CreateFormFile("opml", "subs.opml")
	require.NoError(t, err)
	_, err = part2.Write([]byte(opmlDoc))
	require.NoError(t, err)
	require.NoError(t, mw2.Close())

	req2 := httptest.NewRequest(http.MethodPost, "/api/opml/import", &buf2)
	req2.Header.Set("Content-Type", mw2.FormDataContentType())
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	feeds, err = db.GetFeedsByUser(1)
	require.NoError(t, err)
	assert.Len(t, feeds, 2)

	rec = doJSON(t, srv, http.MethodGet, "/api/opml/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `xmlUrl="https://dev.example.com/rss"`)
	assert.Contains(t, body, `feedType="audio"`)
	assert.Contains(t, body, `text="Tech"`)
}
