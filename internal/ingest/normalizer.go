// Package ingest converts raw source payloads into the canonical article
// shape and drives the per-feed fetch→normalize→persist pipeline.
package ingest

import (
	"fmt"

	"github.com/bryan-buckman/newsriver/internal/model"
)

// Metadata is the feed-level patch discovered while normalizing a payload.
// Empty fields mean "no change".
type Metadata struct {
	Title   string
	SiteURL string
	IconURL string
}

// Result is the outcome of normalizing one payload. A successful parse with
// zero articles is the normal case for an unchanged source.
type Result struct {
	Metadata Metadata
	Articles []model.Article
}

// Normalizer converts one source type's payload into the canonical shape.
// Implementations are pure; persistence and error bookkeeping stay with the
// pipeline.
type Normalizer interface {
	Normalize(payload []byte, feed *model.Feed) (*Result, error)
}

// ForType returns the normalizer for a feed type. The switch is exhaustive
// over the closed FeedType set.
func ForType(t model.FeedType) (Normalizer, error) {
	switch t {
	case model.FeedTypeWeb:
		return &syndicationNormalizer{kind: model.FeedTypeWeb}, nil
	case model.FeedTypeForum:
		return &syndicationNormalizer{kind: model.FeedTypeForum}, nil
	case model.FeedTypeAudio:
		return &syndicationNormalizer{kind: model.FeedTypeAudio}, nil
	case model.FeedTypeVideo:
		return &videoNormalizer{syndicationNormalizer{kind: model.FeedTypeVideo}}, nil
	}
	return nil, fmt.Errorf("unknown feed type %q", t)
}
