package subsync

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
)

// OPML is the plain-text outline interchange format understood by most
// feed readers. Only the RSS side of a subscription list is expressed;
// protocol author keys have no OPML equivalent.

type (
	opmlDoc struct {
		XMLName xml.Name    `xml:"opml"`
		Version string      `xml:"version,attr"`
		Head    opmlHead    `xml:"head"`
		Body    opmlOutline `xml:"body"`
	}

	opmlHead struct {
		Title       string `xml:"title,omitempty"`
		DateCreated string `xml:"dateCreated,omitempty"`
	}

	opmlOutline struct {
		Outlines []outline `xml:"outline"`
	}

	outline struct {
		Text     string    `xml:"text,attr"`
		Title    string    `xml:"title,attr,omitempty"`
		Type     string    `xml:"type,attr,omitempty"`
		XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
		Outlines []outline `xml:"outline,omitempty"`
	}
)

// ExportOPML renders the user's RSS feeds as an OPML 2.0 document.
func ExportOPML(w io.Writer, title string, feeds []feedz.Feed) error {
	doc := opmlDoc{
		Version: "2.0",
		Head: opmlHead{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}
	for _, feed := range feeds {
		if feed.Type != feedz.FeedTypeRSS {
			continue
		}
		text := feed.Source
		if feed.Title != nil && *feed.Title != "" {
			text = *feed.Title
		}
		doc.Body.Outlines = append(doc.Body.Outlines, outline{
			Text:   text,
			Title:  text,
			Type:   "rss",
			XMLURL: feed.Source,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("error writing opml header: %s", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("error encoding opml: %s", err)
	}

	return nil
}

// ImportOPML reads an OPML document and returns the feed URLs it
// contains, walking nested folders.
func ImportOPML(r io.Reader) ([]string, error) {
	var doc opmlDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("error decoding opml: %s", err)
	}

	var urls []string
	var walk func(outlines []outline)
	walk = func(outlines []outline) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				urls = append(urls, o.XMLURL)
			}
			if len(o.Outlines) > 0 {
				walk(o.Outlines)
			}
		}
	}
	walk(doc.Body.Outlines)

	return urls, nil
}
