// Package opml imports and exports subscription lists as OPML 2.0.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/bryan-buckman/newsriver/internal/model"
)

// Document is the root of an OPML file.
type Document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head carries document metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body holds the outline tree.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is one node: a feed when XMLURL is set, a folder otherwise.
// FeedType is a vendor attribute; files from other readers simply omit it.
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	FeedType string    `xml:"feedType,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Entry is one subscription flattened out of the outline tree. Folder is
// empty for feeds at the top level; nesting deeper than one folder level
// collapses to the outermost folder.
type Entry struct {
	Folder  string
	Title   string
	URL     string
	SiteURL string
	Type    model.FeedType
}

// Parse reads an OPML document into flat entries. Unknown or absent feed
// types fall back to web so files from other readers import cleanly.
func Parse(r io.Reader) ([]Entry, error) {
	var doc Document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var entries []Entry
	var walk func(outlines []Outline, folder string)
	walk = func(outlines []Outline, folder string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				ft := model.FeedType(o.FeedType)
				if !ft.Valid() {
					ft = model.FeedTypeWeb
				}
				entries = append(entries, Entry{
					Folder:  folder,
					Title:   title,
					URL:     o.XMLURL,
					SiteURL: o.HTMLURL,
					Type:    ft,
				})
				continue
			}
			if len(o.Outlines) == 0 {
				continue
			}
			name := o.Text
			if name == "" {
				name = o.Title
			}
			if folder != "" {
				// Collapse nested folders to the outermost level.
				name = folder
			}
			walk(o.Outlines, name)
		}
	}
	walk(doc.Body.Outlines, "")
	return entries, nil
}

// Export renders entries as OPML, grouping by folder. Folders and the feeds
// inside them keep a stable order so repeated exports diff cleanly.
func Export(title string, entries []Entry, now time.Time) ([]byte, error) {
	doc := Document{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: now.UTC().Format(time.RFC1123Z),
		},
	}

	byFolder := make(map[string][]Outline)
	var folderNames []string
	for _, e := range entries {
		o := Outline{
			Text:     e.Title,
			Title:    e.Title,
			Type:     "rss",
			XMLURL:   e.URL,
			HTMLURL:  e.SiteURL,
			FeedType: string(e.Type),
		}
		if _, seen := byFolder[e.Folder]; !seen && e.Folder != "" {
			folderNames = append(folderNames, e.Folder)
		}
		byFolder[e.Folder] = append(byFolder[e.Folder], o)
	}
	sort.Strings(folderNames)

	doc.Body.Outlines = append(doc.Body.Outlines, byFolder[""]...)
	for _, name := range folderNames {
		doc.Body.Outlines = append(doc.Body.Outlines, Outline{
			Text:     name,
			Title:    name,
			Outlines: byFolder[name],
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
