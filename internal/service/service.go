package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-resty/resty/v2"

	"github.com/OuterWinnie/Goodreads-Bot/internal/announce"
	"github.com/OuterWinnie/Goodreads-Bot/internal/config"
	"github.com/OuterWinnie/Goodreads-Bot/internal/freshness"
	"github.com/OuterWinnie/Goodreads-Bot/internal/review"
	"github.com/OuterWinnie/Goodreads-Bot/internal/rss"
	"github.com/OuterWinnie/Goodreads-Bot/internal/state"
)

// FeedSource fetches user updates feeds and reviewer avatars.
type FeedSource interface {
	Fetch(ctx context.Context, userID string) (*rss.Feed, error)
	Avatar(ctx context.Context, userURL string) (string, error)
}

// ProfileSource extracts review records from a profile page.
type ProfileSource interface {
	Extract(ctx context.Context, profileURL string) ([]review.Record, error)
}

// Classifier tells whether a review is newer than the last one seen for its user.
type Classifier interface {
	Check(ctx context.Context, id state.UserID, published time.Time) (bool, error)
}

// Service ties together feed polling, freshness tracking and publishing.
// Cycles run one at a time; runMu keeps concurrent Check calls from interleaving
// state writes.
type Service struct {
	feeds    FeedSource
	profiles ProfileSource
	filter   Classifier
	composer announce.Composer
	http     *resty.Client
	logger   *log.Logger
	cfg      config.Config

	runMu sync.Mutex
	mu    sync.RWMutex
	last  []review.Record
}

// NewService creates a Service instance.
func NewService(feeds FeedSource, profiles ProfileSource, filter Classifier, composer announce.Composer, logger *log.Logger, cfg config.Config) *Service {
	client := resty.New()
	client.SetTimeout(cfg.HTTPTimeout)
	return &Service{
		feeds:    feeds,
		profiles: profiles,
		filter:   filter,
		composer: composer,
		http:     client,
		logger:   logger,
		cfg:      cfg,
	}
}

// Check runs one feed cycle over every configured user and returns every starred
// review found, flagged with IsNew. A failing user is logged and skipped.
func (s *Service) Check(ctx context.Context) []review.Record {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	var out []review.Record
	for _, id := range s.cfg.UserIDs {
		out = append(out, s.checkUser(ctx, id)...)
	}
	return out
}

func (s *Service) checkUser(ctx context.Context, userID string) []review.Record {
	s.debugf("trying for %s", userID)
	feed, err := s.feeds.Fetch(ctx, userID)
	if err != nil {
		s.logger.Printf("warning: couldn't connect to RSS for %s: %v", userID, err)
		return nil
	}
	s.debugf("found user: %s, %d entries", feed.Username, len(feed.Entries))

	var cands []candidate
	for i, entry := range feed.Entries {
		details, err := rss.ParseDescription(entry.Description)
		if errors.Is(err, rss.ErrNotReview) {
			continue
		}
		if err != nil {
			s.logger.Printf("bad entry #%d for %s: %v\ndescription: %q", i, userID, err, entry.Description)
			continue
		}
		published, err := publishedAt(entry)
		if err != nil {
			s.logger.Printf("bad entry #%d for %s: %v\ndescription: %q", i, userID, err, entry.Description)
			continue
		}
		cands = append(cands, candidate{details: details, published: published})
	}

	// Classify oldest first; records keep feed order.
	order := make([]int, len(cands))
	for k := range order {
		order[k] = k
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cands[a].published.Compare(cands[b].published)
	})
	for _, k := range order {
		isNew, err := s.filter.Check(ctx, state.UserID(userID), cands[k].published)
		if err != nil {
			s.logger.Printf("warning: %v", err)
		}
		cands[k].isNew = isNew
	}

	var (
		out    []review.Record
		avatar string
	)
	for _, c := range cands {
		if avatar == "" {
			avatar = s.avatar(ctx, feed.UserURL)
		}
		out = append(out, review.Record{
			Title:        c.details.Title,
			Score:        c.details.Score,
			Author:       c.details.Author,
			URL:          c.details.URL,
			ImageURL:     c.details.ImageURL,
			UserURL:      feed.UserURL,
			Username:     feed.Username,
			UserImageURL: avatar,
			IsNew:        c.isNew,
		})
		s.debugf("review found from: %s for: %s (new: %t)", feed.Username, c.details.Title, c.isNew)
	}
	return out
}

type candidate struct {
	details   rss.Details
	published time.Time
	isNew     bool
}

func (s *Service) avatar(ctx context.Context, userURL string) string {
	src, err := s.feeds.Avatar(ctx, userURL)
	if err != nil {
		s.debugf("avatar not found for %s: %v", userURL, err)
		return review.PlaceholderAvatar
	}
	return src
}

func publishedAt(entry rss.Entry) (time.Time, error) {
	t, err := freshness.ParsePublished(entry.Published)
	if err == nil {
		return t, nil
	}
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed, nil
	}
	return time.Time{}, err
}

// CheckProfile extracts the reviews of the configured profile page, if any.
func (s *Service) CheckProfile(ctx context.Context) []review.Record {
	if s.cfg.ProfileURL == "" || s.profiles == nil {
		return nil
	}
	records, err := s.profiles.Extract(ctx, s.cfg.ProfileURL)
	if err != nil {
		s.logger.Printf("could not parse profile %s: %v", s.cfg.ProfileURL, err)
		return nil
	}
	return records
}

// Run serves the status routes and polls every PollInterval until ctx is done.
// A server that fails to listen stops the loop with its error.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.BindAddr, Handler: s.Handler()}
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Printf("status server on %s", s.cfg.BindAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("status server shutdown: %v", err)
		}
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.PollOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Printf("poller stopped: %v", ctx.Err())
			return nil
		case err := <-serveErr:
			return fmt.Errorf("status server: %w", err)
		case <-ticker.C:
		}
	}
}

// PollOnce runs both extraction paths, remembers the results and publishes new feed reviews.
func (s *Service) PollOnce(ctx context.Context) {
	s.logger.Println("polling once")
	records := s.Check(ctx)
	all := append(records, s.CheckProfile(ctx)...)

	s.mu.Lock()
	s.last = all
	s.mu.Unlock()

	fresh := review.OnlyNew(records)
	s.logger.Printf("found %d reviews, %d new", len(records), len(fresh))
	for _, r := range fresh {
		s.publish(ctx, r)
	}
}

// Last returns the records of the latest poll.
func (s *Service) Last() []review.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]review.Record(nil), s.last...)
}

// Handler exposes the status routes.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.healthHandler)
	r.Get("/reviews", s.reviewsHandler)
	return r
}

func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Service) reviewsHandler(w http.ResponseWriter, r *http.Request) {
	items := s.Last()
	if r.URL.Query().Get("new") == "true" {
		items = review.OnlyNew(items)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Count int             `json:"count"`
		Items []review.Record `json:"items"`
	}{
		Count: len(items),
		Items: items,
	}); err != nil {
		s.logger.Printf("write reviews response failed: %v", err)
	}
}

func (s *Service) publish(ctx context.Context, r review.Record) {
	text, err := s.composer.Compose(ctx, r)
	if err != nil {
		s.logger.Printf("compose announcement failed for %s: %v", r.Title, err)
		text = announce.Template(r)
	}
	if s.cfg.WebhookURL == "" {
		s.logger.Printf("new review: %s", text)
		return
	}

	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"text":   text,
			"review": r,
		}).
		Post(s.cfg.WebhookURL)
	if err != nil {
		s.logger.Printf("send webhook failed: %v", err)
		return
	}
	if res.IsError() {
		s.logger.Printf("webhook returned non-2xx status: %s", res.Status())
	}
}

func (s *Service) debugf(format string, args ...any) {
	if s.cfg.Debug {
		s.logger.Printf("debug: "+format, args...)
	}
}
