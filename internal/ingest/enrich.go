package ingest

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Content enrichment. Every function here returns an explicit result; the
// pipeline decides once, centrally, that enrichment failures degrade
// output instead of blocking ingestion.

// heroImageSkip marks image URLs and class names that are chrome rather
// than content.
var heroImageSkip = []string{"icon", "avatar", "logo", "emoji", "badge", "pixel", "spacer", "1x1"}

// ExtractHeroImage picks a representative image from an HTML fragment:
// Open Graph / Twitter card metadata first, then the first body <img> that
// isn't an icon or avatar. Returns "" when nothing qualifies.
func ExtractHeroImage(htmlContent string) string {
	if strings.TrimSpace(htmlContent) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	for _, sel := range []string{
		`meta[property="og:image"]`,
		`meta[name="og:image"]`,
		`meta[name="twitter:image"]`,
		`meta[property="twitter:image"]`,
	} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok && content != "" {
			return content
		}
	}

	var hero string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, ok := img.Attr("src")
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		probe := strings.ToLower(src + " " + img.AttrOr("class", "") + " " + img.AttrOr("alt", ""))
		for _, skip := range heroImageSkip {
			if strings.Contains(probe, skip) {
				return true
			}
		}
		hero = src
		return false
	})
	return hero
}

// readabilityStrip removes page chrome before content selection.
var readabilityStrip = []string{
	"script", "style", "noscript", "iframe", "form", "nav",
	"header", "footer", "aside", "button",
}

// readabilityCandidates are tried in order for the main content container.
var readabilityCandidates = []string{
	"article",
	`[role="main"]`,
	"main",
	"#content",
	".post-content",
	".entry-content",
	".article-body",
}

// minReadableChars is the smallest text length accepted as a readable body;
// anything shorter degrades to the feed-supplied summary.
const minReadableChars = 250

// ExtractReadableContent derives a clean full-text body from a raw HTML
// page, independent of the feed-supplied summary.
func ExtractReadableContent(pageHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	doc.Find(strings.Join(readabilityStrip, ", ")).Remove()

	for _, sel := range readabilityCandidates {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if len(strings.TrimSpace(node.Text())) < minReadableChars {
			continue
		}
		inner, err := node.Html()
		if err != nil {
			continue
		}
		return strings.TrimSpace(inner), nil
	}

	body := doc.Find("body").First()
	if body.Length() > 0 && len(strings.TrimSpace(body.Text())) >= minReadableChars {
		inner, err := body.Html()
		if err == nil {
			return strings.TrimSpace(inner), nil
		}
	}
	return "", fmt.Errorf("no readable content found")
}
