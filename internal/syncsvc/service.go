package syncsvc

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryan-buckman/newsriver/internal/database"
	"github.com/bryan-buckman/newsriver/internal/model"
)

// ArticlePageSize caps the created-articles partition per response. Clients
// that need more re-sync with the advanced cursor.
const ArticlePageSize = 500

// Entity kinds accepted in the include set.
const (
	IncludeFeeds     = "feeds"
	IncludeFolders   = "folders"
	IncludeArticles  = "articles"
	IncludeReadState = "read_state"
)

// FeedChange is the wire shape of one feed row.
type FeedChange struct {
	ID                     int64      `json:"id"`
	FolderID               *int64     `json:"folder_id"`
	Type                   string     `json:"type"`
	URL                    string     `json:"url"`
	Title                  string     `json:"title"`
	SiteURL                string     `json:"site_url"`
	IconURL                string     `json:"icon_url"`
	RefreshIntervalMinutes int        `json:"refresh_interval_minutes"`
	ErrorCount             int        `json:"error_count"`
	LastError              string     `json:"last_error"`
	Paused                 bool       `json:"paused"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
	LastFetchedAt          *time.Time `json:"last_fetched_at"`
}

// FolderChange is the wire shape of one folder row.
type FolderChange struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArticleChange is the wire shape of one article row. Articles are
// immutable so only a created partition exists.
type ArticleChange struct {
	ID                 int64     `json:"id"`
	FeedID             int64     `json:"feed_id"`
	GUID               string    `json:"guid"`
	Title              string    `json:"title"`
	URL                string    `json:"url"`
	Author             string    `json:"author"`
	Summary            string    `json:"summary"`
	Content            string    `json:"content"`
	ReadabilityContent string    `json:"readability_content,omitempty"`
	EnclosureURL       string    `json:"enclosure_url,omitempty"`
	EnclosureType      string    `json:"enclosure_type,omitempty"`
	EnclosureLength    int64     `json:"enclosure_length,omitempty"`
	EnclosureDuration  int64     `json:"enclosure_duration,omitempty"`
	ThumbnailURL       string    `json:"thumbnail_url,omitempty"`
	IsBookmarked       bool      `json:"is_bookmarked"`
	PublishedAt        time.Time `json:"published_at"`
	FetchedAt          time.Time `json:"fetched_at"`
}

// FeedDelta partitions feed changes since the watermark.
type FeedDelta struct {
	Created []FeedChange `json:"created"`
	Updated []FeedChange `json:"updated"`
	Deleted []int64      `json:"deleted"`
}

// FolderDelta partitions folder changes since the watermark.
type FolderDelta struct {
	Created []FolderChange `json:"created"`
	Updated []FolderChange `json:"updated"`
	Deleted []int64        `json:"deleted"`
}

// ArticleDelta carries newly ingested articles.
type ArticleDelta struct {
	Created []ArticleChange `json:"created"`
}

// ReadStateDelta partitions read-state mutations into read and unread ids.
type ReadStateDelta struct {
	Read   []int64 `json:"read"`
	Unread []int64 `json:"unread"`
}

// ChangeSet groups the per-kind deltas; absent kinds were not requested.
type ChangeSet struct {
	Feeds     *FeedDelta      `json:"feeds,omitempty"`
	Folders   *FolderDelta    `json:"folders,omitempty"`
	Articles  *ArticleDelta   `json:"articles,omitempty"`
	ReadState *ReadStateDelta `json:"read_state,omitempty"`
}

// Response is the full sync payload.
type Response struct {
	Changes    ChangeSet `json:"changes"`
	NextCursor string    `json:"next_cursor"`
	ServerTime time.Time `json:"server_time"`
}

// PushItem is one client-held read-state mutation.
type PushItem struct {
	ArticleID int64 `json:"article_id"`
	IsRead    bool  `json:"is_read"`
}

// PushResult counts per-row outcomes; one bad row never aborts the batch.
type PushResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// Service serves the sync protocol.
type Service struct {
	db  *database.DB
	log *logrus.Entry
	now func() time.Time
}

// NewService builds the sync handler.
func NewService(db *database.DB, log *logrus.Entry) *Service {
	return &Service{db: db, log: log, now: time.Now}
}

// ParseInclude splits the comma-separated include set; an empty value means
// everything.
func ParseInclude(raw string) map[string]bool {
	include := map[string]bool{}
	if strings.TrimSpace(raw) == "" {
		for _, kind := range []string{IncludeFeeds, IncludeFolders, IncludeArticles, IncludeReadState} {
			include[kind] = true
		}
		return include
	}
	for _, kind := range strings.Split(raw, ",") {
		include[strings.TrimSpace(kind)] = true
	}
	return include
}

// Changes computes the delta since the client's cursor.
//
// The returned cursor encodes the server time read before the partition
// queries run, not the newest row returned: progress is monotonic even
// when every partition is empty, and because all row comparisons are
// strict greater-than, a row timestamped inside the query window is
// re-sent next time rather than lost.
func (s *Service) Changes(userID int64, cursor Cursor, include map[string]bool) (*Response, error) {
	serverTime := s.now().UTC()
	watermark := cursor.Watermark()

	resp := &Response{
		NextCursor: CursorAt(serverTime).Encode(),
		ServerTime: serverTime,
	}

	if include[IncludeFeeds] {
		delta, err := s.feedDelta(userID, watermark)
		if err != nil {
			return nil, fmt.Errorf("feed delta: %w", err)
		}
		resp.Changes.Feeds = delta
	}
	if include[IncludeFolders] {
		delta, err := s.folderDelta(userID, watermark)
		if err != nil {
			return nil, fmt.Errorf("folder delta: %w", err)
		}
		resp.Changes.Folders = delta
	}
	if include[IncludeArticles] {
		articles, err := s.db.ArticlesFetchedSince(userID, watermark, ArticlePageSize)
		if err != nil {
			return nil, fmt.Errorf("article delta: %w", err)
		}
		delta := &ArticleDelta{Created: []ArticleChange{}}
		for _, a := range articles {
			delta.Created = append(delta.Created, articleChange(a))
		}
		resp.Changes.Articles = delta
	}
	if include[IncludeReadState] {
		read, unread, err := s.db.ReadStateChangedSince(userID, watermark)
		if err != nil {
			return nil, fmt.Errorf("read-state delta: %w", err)
		}
		resp.Changes.ReadState = &ReadStateDelta{Read: emptyIfNil(read), Unread: emptyIfNil(unread)}
	}
	return resp, nil
}

// Push applies read-state mutations as idempotent upserts keyed by
// (user, article). Each row is counted independently.
func (s *Service) Push(userID int64, items []PushItem) PushResult {
	var result PushResult
	now := s.now().UTC()
	for _, item := range items {
		if err := s.db.UpsertReadState(userID, item.ArticleID, item.IsRead, now); err != nil {
			s.log.WithFields(logrus.Fields{"user_id": userID, "article_id": item.ArticleID}).
				WithError(err).Debug("read-state push rejected")
			result.Rejected++
			continue
		}
		result.Accepted++
	}
	return result
}

func (s *Service) feedDelta(userID int64, watermark time.Time) (*FeedDelta, error) {
	created, err := s.db.FeedsCreatedSince(userID, watermark)
	if err != nil {
		return nil, err
	}
	updated, err := s.db.FeedsUpdatedSince(userID, watermark)
	if err != nil {
		return nil, err
	}
	deleted, err := s.db.FeedsDeletedSince(userID, watermark)
	if err != nil {
		return nil, err
	}
	delta := &FeedDelta{Created: []FeedChange{}, Updated: []FeedChange{}, Deleted: emptyIfNil(deleted)}
	for _, f := range created {
		delta.Created = append(delta.Created, feedChange(f))
	}
	for _, f := range updated {
		delta.Updated = append(delta.Updated, feedChange(f))
	}
	return delta, nil
}

func (s *Service) folderDelta(userID int64, watermark time.Time) (*FolderDelta, error) {
	created, err := s.db.FoldersCreatedSince(userID, watermark)
	if err != nil {
		return nil, err
	}
	updated, err := s.db.FoldersUpdatedSince(userID, watermark)
	if err != nil {
		return nil, err
	}
	deleted, err := s.db.FoldersDeletedSince(userID, watermark)
	if err != nil {
		return nil, err
	}
	delta := &FolderDelta{Created: []FolderChange{}, Updated: []FolderChange{}, Deleted: emptyIfNil(deleted)}
	for _, f := range created {
		delta.Created = append(delta.Created, folderChange(f))
	}
	for _, f := range updated {
		delta.Updated = append(delta.Updated, folderChange(f))
	}
	return delta, nil
}

func feedChange(f model.Feed) FeedChange {
	return FeedChange{
		ID:                     f.ID,
		FolderID:               f.FolderID,
		Type:                   string(f.Type),
		URL:                    f.URL,
		Title:                  f.Title,
		SiteURL:                f.SiteURL,
		IconURL:                f.IconURL,
		RefreshIntervalMinutes: f.RefreshIntervalMinutes,
		ErrorCount:             f.ErrorCount,
		LastError:              f.LastError,
		Paused:                 f.Paused(),
		CreatedAt:              f.CreatedAt,
		UpdatedAt:              f.UpdatedAt,
		LastFetchedAt:          f.LastFetchedAt,
	}
}

func folderChange(f model.Folder) FolderChange {
	return FolderChange{ID: f.ID, Name: f.Name, CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt}
}

func articleChange(a model.Article) ArticleChange {
	return ArticleChange{
		ID:                 a.ID,
		FeedID:             a.FeedID,
		GUID:               a.GUID,
		Title:              a.Title,
		URL:                a.URL,
		Author:             a.Author,
		Summary:            a.Summary,
		Content:            a.Content,
		ReadabilityContent: a.ReadabilityContent,
		EnclosureURL:       a.Enclosure.URL,
		EnclosureType:      a.Enclosure.Type,
		EnclosureLength:    a.Enclosure.Length,
		EnclosureDuration:  a.Enclosure.Duration,
		ThumbnailURL:       a.ThumbnailURL,
		IsBookmarked:       a.IsBookmarked,
		PublishedAt:        a.PublishedAt,
		FetchedAt:          a.FetchedAt,
	}
}

func emptyIfNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
