package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
)

// The updates server blocks requests without a browser agent and a referrer.
const (
	UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"
	Referrer  = "http://google.com"
)

// Entry is one raw feed item.
type Entry struct {
	Description     string
	Published       string
	PublishedParsed *time.Time
}

// Feed is a fetched user updates feed.
type Feed struct {
	URL      string
	UserURL  string
	Username string
	Entries  []Entry
}

// Fetcher pulls and parses user updates feeds.
type Fetcher struct {
	baseURL string
	http    *resty.Client
	parser  *gofeed.Parser
	logger  *log.Logger
}

// NewFetcher creates a fetcher for feeds at baseURL+<user id>.
func NewFetcher(baseURL string, timeout time.Duration, logger *log.Logger) *Fetcher {
	client := resty.New()
	client.SetHeader("User-Agent", UserAgent)
	client.SetHeader("Referer", Referrer)
	client.SetTimeout(timeout)

	return &Fetcher{
		baseURL: baseURL,
		http:    client,
		parser:  gofeed.NewParser(),
		logger:  logger,
	}
}

// FeedURL is the updates feed of a user.
func (f *Fetcher) FeedURL(userID string) string {
	return f.baseURL + userID
}

// Fetch pulls the feed of a user and returns its entries.
func (f *Fetcher) Fetch(ctx context.Context, userID string) (*Feed, error) {
	feedURL := f.FeedURL(userID)
	body, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	parsed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	f.logger.Printf("fetched %s: %d entries", feedURL, len(parsed.Items))
	out := &Feed{
		URL:      feedURL,
		UserURL:  UserURL(feedURL),
		Username: ParseUsername(parsed.Title),
		Entries:  make([]Entry, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		out.Entries = append(out.Entries, Entry{
			Description:     item.Description,
			Published:       item.Published,
			PublishedParsed: item.PublishedParsed,
		})
	}
	return out, nil
}

// Avatar scrapes the picture of a user's profile page.
func (f *Fetcher) Avatar(ctx context.Context, userURL string) (string, error) {
	body, err := f.get(ctx, userURL)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("parse profile page %s: %w", userURL, err)
	}
	src, ok := doc.Find("div.leftAlignedProfilePicture a img").First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return "", errors.New("profile picture not found")
	}
	return strings.TrimSpace(src), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	res, err := f.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("get %s: unexpected status %s", url, res.Status())
	}
	return res.Body(), nil
}
