package rss

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/OuterWinnie/Goodreads-Bot/internal/review"
)

// ErrNotReview marks an entry without a starred rating.
var ErrNotReview = errors.New("entry is not a starred review")

// Star markers. Singular is checked first; neither is a substring of the other.
const (
	starMarker  = `star to <a class="bookTitle"`
	starsMarker = `stars to <a class="bookTitle"`
)

// Details holds the fields recovered from one entry description.
type Details struct {
	Title    string
	Author   string
	Score    int
	ImageURL string
	URL      string
}

// ParseDescription extracts review details from an entry's HTML fragment.
//
// The rating is positional: up to two digits right before the marker, past one
// separating space.
// The first anchor is the review permalink; the book title is the bookTitle
// anchor, which is the second anchor in well formed entries.
func ParseDescription(desc string) (Details, error) {
	pos, ok := markerPosition(desc)
	if !ok {
		return Details{}, ErrNotReview
	}

	score, err := parseScore(desc, pos)
	if err != nil {
		return Details{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc))
	if err != nil {
		return Details{}, fmt.Errorf("parse description fragment: %w", err)
	}

	link, ok := permalink(doc)
	if !ok {
		return Details{}, errors.New("description has no review permalink")
	}

	d := Details{
		Score:    score,
		URL:      link,
		Title:    review.UnknownBook,
		Author:   review.UnknownAuthor,
		ImageURL: review.PlaceholderCover,
	}
	if title, ok := bookTitle(doc); ok {
		d.Title = title
	}
	if author, ok := authorName(doc); ok {
		d.Author = author
	}
	if img, ok := coverImage(doc); ok {
		d.ImageURL = img
	}
	return d, nil
}

func markerPosition(desc string) (int, bool) {
	if i := strings.Index(desc, starMarker); i != -1 {
		return i, true
	}
	if i := strings.Index(desc, starsMarker); i != -1 {
		return i, true
	}
	return -1, false
}

func parseScore(desc string, pos int) (int, error) {
	end := pos
	if end > 0 && desc[end-1] == ' ' {
		end--
	}
	start := end
	for start > 0 && end-start < 2 && desc[start-1] >= '0' && desc[start-1] <= '9' {
		start--
	}
	raw := desc[start:end]
	if raw == "" {
		return 0, fmt.Errorf("parse score: no digits before %q", desc[pos:])
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", raw, err)
	}
	return score, nil
}

func permalink(doc *goquery.Document) (string, bool) {
	href, ok := doc.Find("a[href]").First().Attr("href")
	href = strings.TrimSpace(href)
	return href, ok && href != ""
}

func bookTitle(doc *goquery.Document) (string, bool) {
	sel := doc.Find("a.bookTitle").First()
	if sel.Length() == 0 {
		sel = doc.Find("a").Eq(1)
	}
	return nonEmptyText(sel)
}

func authorName(doc *goquery.Document) (string, bool) {
	return nonEmptyText(doc.Find("a.authorName").First())
}

func coverImage(doc *goquery.Document) (string, bool) {
	src, ok := doc.Find("img[src]").First().Attr("src")
	src = strings.TrimSpace(src)
	return src, ok && src != ""
}

func nonEmptyText(sel *goquery.Selection) (string, bool) {
	if sel.Length() == 0 {
		return "", false
	}
	text := strings.TrimSpace(sel.Text())
	return text, text != ""
}

// ParseUsername recovers the display name from a "<name>'s Updates" feed title.
func ParseUsername(title string) string {
	if i := strings.Index(title, "'s Updates"); i != -1 {
		title = title[:i]
	}
	return strings.TrimRightFunc(title, unicode.IsSpace)
}

// UserURL derives the profile page from a feed URL.
func UserURL(feedURL string) string {
	return strings.ReplaceAll(feedURL, "updates_rss", "show")
}
