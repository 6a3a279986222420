// Package profile scrapes review activity from a public social reading profile.
package profile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/OuterWinnie/Goodreads-Bot/internal/review"
)

// ReviewsPath is resolved against the profile URL to reach the activity page.
const ReviewsPath = "reviews-comments"

var firstInt = regexp.MustCompile(`\d+`)

// Extractor fetches a profile's activity page and classifies its entries.
type Extractor struct {
	http   *resty.Client
	logger *log.Logger
	debug  bool
}

// NewExtractor creates a profile extractor.
func NewExtractor(timeout time.Duration, logger *log.Logger, debug bool) *Extractor {
	client := resty.New()
	client.SetTimeout(timeout)
	return &Extractor{http: client, logger: logger, debug: debug}
}

// Extract returns the review records of a profile. Rating-only events are dropped.
func (e *Extractor) Extract(ctx context.Context, profileURL string) ([]review.Record, error) {
	events, err := e.Events(ctx, profileURL)
	if err != nil {
		return nil, err
	}
	return Reviews(events), nil
}

// Events fetches the activity page of a profile and classifies every entry.
func (e *Extractor) Events(ctx context.Context, profileURL string) ([]review.Event, error) {
	reviewsURL, err := resolve(profileURL, ReviewsPath)
	if err != nil {
		return nil, err
	}
	res, err := e.http.R().
		SetContext(ctx).
		Get(reviewsURL)
	if err != nil {
		e.logger.Printf("warning: could not fetch profile %s: %v", profileURL, err)
		return nil, fmt.Errorf("get %s: %w", reviewsURL, err)
	}
	if res.IsError() {
		e.logger.Printf("warning: could not fetch profile %s: status %s", profileURL, res.Status())
		return nil, fmt.Errorf("get %s: unexpected status %s", reviewsURL, res.Status())
	}

	events, err := Parse(bytes.NewBuffer(res.Body()), profileURL)
	if err != nil {
		e.logger.Printf("could not parse profile page %s: %v", profileURL, err)
		return nil, err
	}
	for _, ev := range events {
		if ev.Kind == review.Rating && e.debug {
			r := ev.Record
			e.logger.Printf("debug: %s rated %s by %s: %d", r.Username, r.Title, r.Author, r.Score)
		}
	}
	return events, nil
}

// Reviews keeps the Review events as records.
func Reviews(events []review.Event) []review.Record {
	out := make([]review.Record, 0, len(events))
	for _, ev := range events {
		if ev.Kind == review.Review {
			out = append(out, ev.Record)
		}
	}
	return out
}

// Parse classifies the entries of an activity page. Each bold h3 heading is one
// entry; the card-content section following it holds the book details.
func Parse(r io.Reader, profileURL string) ([]review.Event, error) {
	base, err := url.Parse(profileURL)
	if err != nil {
		return nil, fmt.Errorf("parse profile url %q: %w", profileURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse profile page: %w", err)
	}

	userImage := review.PlaceholderAvatar
	if src, ok := doc.Find(`img[class*="avatar image"]`).First().Attr("src"); ok && src != "" {
		userImage = src
	}

	var events []review.Event
	doc.Find("h3.has-text-weight-bold").Each(func(_ int, heading *goquery.Selection) {
		kind, ok := classify(heading.Text())
		if !ok {
			return
		}

		section := nextSection(heading)
		rec := review.Record{
			Title:        orDefault(firstLinkText(heading, "/book/"), review.UnknownBook),
			Author:       orDefault(firstLinkText(heading, "/author/"), review.UnknownAuthor),
			Username:     orDefault(username(heading), fallbackUsername(base)),
			URL:          orDefault(bookURL(section, base), profileURL),
			ImageURL:     orDefault(coverImage(section), review.PlaceholderCover),
			UserURL:      profileURL,
			UserImageURL: userImage,
		}
		if kind == review.Rating {
			rec.Score = score(heading.Find(".stars .is-sr-only").First())
		} else {
			rec.Score = score(section.Find("span.is-sr-only").First())
		}
		events = append(events, review.Event{Kind: kind, Record: rec})
	})
	return events, nil
}

func classify(text string) (review.EventKind, bool) {
	switch {
	case strings.Contains(text, " reviewed "):
		return review.Review, true
	case strings.Contains(text, " rated "):
		return review.Rating, true
	default:
		return 0, false
	}
}

func firstLinkText(sel *goquery.Selection, fragment string) string {
	return strings.TrimSpace(sel.Find(fmt.Sprintf(`a[href*=%q]`, fragment)).First().Text())
}

func username(heading *goquery.Selection) string {
	return strings.TrimSpace(heading.Find(`span[itemprop="name"]`).First().Text())
}

func fallbackUsername(base *url.URL) string {
	return path.Base(strings.TrimSuffix(base.Path, "/"))
}

// bookURL resolves the first /book/ link of section against the profile's scheme and host.
func bookURL(section *goquery.Selection, base *url.URL) string {
	var out string
	section.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.Contains(href, "/book/") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		out = base.ResolveReference(ref).String()
		return false
	})
	return out
}

func coverImage(section *goquery.Selection) string {
	return strings.TrimSpace(section.Find("img.book-cover").First().AttrOr("src", ""))
}

func score(sel *goquery.Selection) int {
	m := firstInt.FindString(sel.Text())
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// nextSection returns the first card-content section after heading in document order.
func nextSection(heading *goquery.Selection) *goquery.Selection {
	if heading.Length() == 0 {
		return heading
	}
	for n := following(heading.Nodes[0]); n != nil; n = nextNode(n) {
		if n.Type == html.ElementNode && n.Data == "section" && hasClass(n, "card-content") {
			return goquery.NewDocumentFromNode(n).Selection
		}
	}
	return heading.Slice(0, 0)
}

func following(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}
	return nil
}

func nextNode(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	return following(n)
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func resolve(profileURL, ref string) (string, error) {
	base, err := url.Parse(profileURL)
	if err != nil {
		return "", fmt.Errorf("parse profile url %q: %w", profileURL, err)
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}
