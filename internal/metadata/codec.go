// Package metadata encodes and decodes the descriptive blob stored on each
// campaign and derives the URL slug used to address campaigns by name.
package metadata

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultTitle       = "Campaign"
	DefaultDescription = "No description available"
)

// Record is the decoded campaign metadata.
type Record struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

func Default() Record {
	return Record{Title: DefaultTitle, Description: DefaultDescription}
}

// Encode serializes a record into the on-chain blob. The title must be
// non-empty after trimming.
func Encode(title, description, imageURL string) ([]byte, error) {
	r := Record{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		ImageURL:    strings.TrimSpace(imageURL),
	}
	if r.Title == "" {
		return nil, fmt.Errorf("metadata: title is required")
	}
	return json.Marshal(r)
}

// Decode never fails: malformed blobs yield the default record and empty
// fields are filled from the defaults.
func Decode(blob []byte) Record {
	var r Record
	if len(blob) == 0 || json.Unmarshal(blob, &r) != nil {
		return Default()
	}
	if strings.TrimSpace(r.Title) == "" {
		r.Title = DefaultTitle
	}
	if strings.TrimSpace(r.Description) == "" {
		r.Description = DefaultDescription
	}
	return r
}

// Slug returns the record's title slug.
func (r Record) Slug() string {
	return Slugify(r.Title)
}

// PlainDescription strips markup from the description for list views and
// terminals. Plain text passes through unchanged.
func (r Record) PlainDescription() string {
	if !strings.ContainsAny(r.Description, "<&") {
		return r.Description
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(r.Description))
	if err != nil {
		return r.Description
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
