package profile

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/OuterWinnie/Goodreads-Bot/internal/review"
)

const activityPage = `<html><body>
<img class="avatar image is-96x96" src="https://social.example/images/avatars/christa.png" alt="christa">

<article class="card">
  <header class="card-header">
    <h3 class="has-text-weight-bold">
      <a href="/user/christa"><span itemprop="name">Christa</span></a> rated <a href="/book/101/s/piranesi">Piranesi</a> by <a href="/author/7/s/susanna-clarke">Susanna Clarke</a>:
      <span class="stars"><span class="is-sr-only">4 stars</span></span>
    </h3>
  </header>
  <section class="card-content">
    <a href="/book/101/s/piranesi"><img class="book-cover" src="https://social.example/images/covers/piranesi.jpg"></a>
  </section>
</article>

<article class="card">
  <header class="card-header">
    <h3 class="has-text-weight-bold">
      <a href="/user/christa"><span itemprop="name">Christa</span></a> reviewed <a href="/book/202/s/dune">Dune</a> by <a href="/author/9/s/frank-herbert">Frank Herbert</a>
    </h3>
  </header>
  <section class="card-content">
    <a href="/user/christa">profile</a>
    <a href="/book/202/s/dune"><img class="book-cover" src="https://social.example/images/covers/dune.jpg"></a>
    <a href="/book/999/s/other">other</a>
    <span class="stars"><span class="is-sr-only">5 stars (of 5)</span></span>
    <p>A classic.</p>
  </section>
</article>

<article class="card">
  <header class="card-header">
    <h3 class="has-text-weight-bold">
      <a href="/user/christa"><span itemprop="name">Christa</span></a> reviewed a book
    </h3>
  </header>
  <section class="card-content">
    <p>No cover, no links, no stars.</p>
  </section>
</article>

<article class="card">
  <header class="card-header">
    <h3 class="has-text-weight-bold">Christa started reading <a href="/book/303">Emma</a></h3>
  </header>
  <section class="card-content"></section>
</article>
</body></html>`

const profileURL = "https://social.example/user/christa/"

func TestParse(t *testing.T) {
	events, err := Parse(strings.NewReader(activityPage), profileURL)
	require.NoError(t, err)
	require.Len(t, events, 3)

	expected := []review.Event{
		{
			Kind: review.Rating,
			Record: review.Record{
				Title:        "Piranesi",
				Score:        4,
				Author:       "Susanna Clarke",
				URL:          "https://social.example/book/101/s/piranesi",
				ImageURL:     "https://social.example/images/covers/piranesi.jpg",
				UserURL:      profileURL,
				Username:     "Christa",
				UserImageURL: "https://social.example/images/avatars/christa.png",
			},
		},
		{
			Kind: review.Review,
			Record: review.Record{
				Title:        "Dune",
				Score:        5,
				Author:       "Frank Herbert",
				URL:          "https://social.example/book/202/s/dune",
				ImageURL:     "https://social.example/images/covers/dune.jpg",
				UserURL:      profileURL,
				Username:     "Christa",
				UserImageURL: "https://social.example/images/avatars/christa.png",
			},
		},
		{
			Kind: review.Review,
			Record: review.Record{
				Title:        review.UnknownBook,
				Score:        0,
				Author:       review.UnknownAuthor,
				URL:          profileURL,
				ImageURL:     review.PlaceholderCover,
				UserURL:      profileURL,
				Username:     "Christa",
				UserImageURL: "https://social.example/images/avatars/christa.png",
			},
		},
	}
	if diff := cmp.Diff(expected, events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	reviews := Reviews(events)
	require.Len(t, reviews, 2)
	require.Equal(t, "Dune", reviews[0].Title)
}

func TestParseNoReviews(t *testing.T) {
	page := `<html><body><h3 class="has-text-weight-bold">Someone rated <a href="/book/1">X</a></h3></body></html>`
	events, err := Parse(strings.NewReader(page), profileURL)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Empty(t, Reviews(events))

	events, err = Parse(strings.NewReader("<html></html>"), profileURL)
	require.NoError(t, err)
	require.Empty(t, Reviews(events))
}

func TestParseMissingAvatarAndName(t *testing.T) {
	page := `<h3 class="has-text-weight-bold">x reviewed <a href="/book/1">X</a></h3><section class="card-content"></section>`
	events, err := Parse(strings.NewReader(page), profileURL)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, review.PlaceholderAvatar, events[0].Record.UserImageURL)
	require.Equal(t, "christa", events[0].Record.Username)
	require.Equal(t, review.PlaceholderCover, events[0].Record.ImageURL)
}

func TestParseBadURL(t *testing.T) {
	_, err := Parse(strings.NewReader(activityPage), "://bad")
	require.Error(t, err)
}

func TestExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/christa/reviews-comments" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, activityPage)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, log.New(io.Discard, "", 0), true)
	records, err := e.Extract(context.Background(), srv.URL+"/user/christa/")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, srv.URL+"/book/202/s/dune", records[0].URL)

	_, err = e.Extract(context.Background(), srv.URL+"/user/nobody/")
	require.Error(t, err)
}
