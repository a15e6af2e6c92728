// Package model defines shared data structures.
package model

import "time"

// FeedType identifies the kind of remote source behind a feed. It selects
// the normalizer used for that feed's payloads.
type FeedType string

const (
	FeedTypeWeb   FeedType = "web"
	FeedTypeVideo FeedType = "video"
	FeedTypeForum FeedType = "forum"
	FeedTypeAudio FeedType = "audio"
)

// Valid reports whether t is one of the known feed types.
func (t FeedType) Valid() bool {
	switch t {
	case FeedTypeWeb, FeedTypeVideo, FeedTypeForum, FeedTypeAudio:
		return true
	}
	return false
}

// ErrorCeiling is the error count at which a feed is excluded from
// due-selection until an explicit resume or manual refresh.
const ErrorCeiling = 5

// Folder groups feeds for one user.
type Folder struct {
	ID        int64
	UserID    int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Feed represents a subscribed source.
type Feed struct {
	ID       int64
	UserID   int64
	FolderID *int64 // nullable if not in a folder
	Type     FeedType
	URL      string // canonical fetch URL
	Title    string
	SiteURL  string

	IconURL  string // remote icon location, as declared by the source
	IconPath string // locally cached file, relative to the data dir
	IconType string // content type of the cached icon

	RefreshIntervalMinutes int

	// Conditional-fetch validators from the last successful response.
	ETag         string
	LastModified string

	LastFetchedAt *time.Time
	NextFetchAt   *time.Time
	ErrorCount    int
	LastError     string
	LastErrorAt   *time.Time
	PausedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Paused reports whether the feed is soft-toggled out of scheduling.
func (f *Feed) Paused() bool { return f.PausedAt != nil }

// CircuitOpen reports whether the feed has hit the error ceiling.
func (f *Feed) CircuitOpen() bool { return f.ErrorCount >= ErrorCeiling }

// Enclosure is an attached media resource (audio/video items).
type Enclosure struct {
	URL      string
	Type     string
	Length   int64
	Duration int64 // seconds, 0 when unknown
}

// Article is one ingested item. Articles are immutable after insert except
// for the enrichment fields (readability content, cached thumbnail) and the
// bookmark flag.
type Article struct {
	ID      int64
	FeedID  int64
	GUID    string // unique within the feed; falls back to the item URL
	Title   string
	URL     string
	Author  string
	Summary string
	Content string

	ReadabilityContent string

	Enclosure Enclosure

	ThumbnailURL  string
	ThumbnailPath string

	IsBookmarked bool

	PublishedAt time.Time
	FetchedAt   time.Time // ingestion time; the sync watermark for articles
}

// ReadState is the per-(user, article) read flag. UpdatedAt is the sync
// watermark; every mutation bumps it (last write wins).
type ReadState struct {
	UserID    int64
	ArticleID int64
	IsRead    bool
	ReadAt    *time.Time
	UpdatedAt time.Time
}

// RetentionPolicy is a user's storage policy. Type-aware hard caps (see
// TypeCaps) are enforced independently of this policy.
type RetentionPolicy struct {
	UserID         int64
	Enabled        bool
	MaxAgeDays     int
	MaxPerFeed     int
	KeepBookmarked bool
	KeepUnread     bool
}

// DefaultRetentionPolicy returns the policy applied to users who never
// changed their settings.
func DefaultRetentionPolicy(userID int64) RetentionPolicy {
	return RetentionPolicy{
		UserID:         userID,
		Enabled:        false,
		MaxAgeDays:     90,
		MaxPerFeed:     500,
		KeepBookmarked: true,
		KeepUnread:     true,
	}
}

// TypeCap is a hard retention bound for one feed type. Zero values disable
// the corresponding limit.
type TypeCap struct {
	MaxAgeDays int
	MaxPerFeed int
}

// TypeCaps are the fixed per-type retention bounds, applied regardless of
// the user policy. Web and forum sources age out; video channels age out
// and are count-capped; audio episodes are count-capped only.
var TypeCaps = map[FeedType]TypeCap{
	FeedTypeWeb:   {MaxAgeDays: 180},
	FeedTypeForum: {MaxAgeDays: 60},
	FeedTypeVideo: {MaxAgeDays: 180, MaxPerFeed: 200},
	FeedTypeAudio: {MaxPerFeed: 100},
}
