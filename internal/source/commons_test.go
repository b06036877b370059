package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagepool/internal/domain"
)

const commonsBody = `{
  "batchcomplete": "",
  "query": {
    "pages": {
      "222": {
        "pageid": 222, "ns": 6, "title": "File:Second.jpg", "index": 2,
        "imageinfo": [{
          "url": "https://upload.wikimedia.org/second.jpg",
          "thumburl": "https://upload.wikimedia.org/thumb/second.jpg",
          "descriptionurl": "https://commons.wikimedia.org/wiki/File:Second.jpg",
          "extmetadata": {
            "UsageTerms": {"value": "Public domain"},
            "Artist": {"value": "Someone"}
          }
        }]
      },
      "111": {
        "pageid": 111, "ns": 6, "title": "File:First.jpg", "index": 1,
        "imageinfo": [{
          "url": "https://upload.wikimedia.org/first.jpg",
          "thumburl": "https://upload.wikimedia.org/thumb/first.jpg",
          "descriptionurl": "https://commons.wikimedia.org/wiki/File:First.jpg",
          "extmetadata": {
            "LicenseShortName": {"value": " CC BY-SA 4.0 "},
            "LicenseUrl": {"value": "https://creativecommons.org/licenses/by-sa/4.0/"},
            "DateTime": {"value": 2024}
          }
        }]
      },
      "333": {"pageid": 333, "ns": 6, "title": "File:NoInfo.jpg", "index": 3}
    }
  }
}`

func TestCommonsClient_Search(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"gsrsearch":    q.Get("gsrsearch"),
			"gsrnamespace": q.Get("gsrnamespace"),
			"gsrlimit":     q.Get("gsrlimit"),
			"iiprop":       q.Get("iiprop"),
		}
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(commonsBody))
	}))
	defer srv.Close()

	c := NewCommonsClientWithBaseURL(srv.Client(), srv.URL)
	got, err := c.Search(context.Background(), "ai circuit", 500)
	require.NoError(t, err)

	assert.Equal(t, "ai circuit", gotQuery["gsrsearch"])
	assert.Equal(t, "6", gotQuery["gsrnamespace"])
	assert.Equal(t, "50", gotQuery["gsrlimit"], "limit is clamped")
	assert.Equal(t, "url|extmetadata", gotQuery["iiprop"])

	require.Len(t, got, 2, "pages without imageinfo are dropped")
	assert.Equal(t, domain.Candidate{
		ID:           "111",
		Title:        "File:First.jpg",
		URL:          "https://commons.wikimedia.org/wiki/File:First.jpg",
		ImageURL:     "https://upload.wikimedia.org/first.jpg",
		ThumbnailURL: "https://upload.wikimedia.org/thumb/first.jpg",
		License:      "CC BY-SA 4.0",
		LicenseURL:   "https://creativecommons.org/licenses/by-sa/4.0/",
		Provider:     domain.ProviderWikimedia,
	}, got[0])
	assert.Equal(t, "222", got[1].ID)
	assert.Equal(t, "Public domain", got[1].License, "usage terms are the license fallback")
	assert.Equal(t, "Someone", got[1].Creator)
	assert.Equal(t, domain.ProviderWikimedia, c.Provider())
}

func TestCommonsClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewCommonsClientWithBaseURL(srv.Client(), srv.URL).Search(context.Background(), "x", 5)
	assert.ErrorContains(t, err, "429")
}

func TestCommonsClient_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"batchcomplete":""}`))
	}))
	defer srv.Close()

	got, err := NewCommonsClientWithBaseURL(srv.Client(), srv.URL).Search(context.Background(), "nothing", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCommonsClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewCommonsClientWithBaseURL(srv.Client(), srv.URL).Search(ctx, "slow", 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
