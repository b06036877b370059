package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"imagepool/internal/domain"
)

// CommonsAPI is the MediaWiki endpoint of Wikimedia Commons.
const CommonsAPI = "https://commons.wikimedia.org/w/api.php"

// CommonsClient searches the File namespace of Wikimedia Commons.
type CommonsClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewCommonsClient creates a Commons client with the given HTTP client.
func NewCommonsClient(client *http.Client) *CommonsClient {
	return NewCommonsClientWithBaseURL(client, CommonsAPI)
}

// NewCommonsClientWithBaseURL creates a Commons client with a custom endpoint (for testing).
func NewCommonsClientWithBaseURL(client *http.Client, baseURL string) *CommonsClient {
	return &CommonsClient{
		client:    defaultClient(client),
		baseURL:   baseURL,
		userAgent: DefaultUserAgent,
	}
}

func (c *CommonsClient) Provider() string { return domain.ProviderWikimedia }

type extValue struct {
	Value json.RawMessage `json:"value"`
}

// String returns the value when it is a JSON string.
func (v extValue) String() string {
	var s string
	if err := json.Unmarshal(v.Value, &s); err != nil {
		return ""
	}
	return s
}

type commonsResponse struct {
	Query struct {
		Pages map[string]struct {
			PageID    int64  `json:"pageid"`
			Title     string `json:"title"`
			Index     int    `json:"index"`
			ImageInfo []struct {
				URL            string              `json:"url"`
				ThumbURL       string              `json:"thumburl"`
				DescriptionURL string              `json:"descriptionurl"`
				ExtMetadata    map[string]extValue `json:"extmetadata"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// Search runs a generator=search query restricted to namespace 6 (File).
func (c *CommonsClient) Search(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", query)
	params.Set("gsrnamespace", "6")
	params.Set("gsrlimit", strconv.Itoa(clampLimit(limit)))
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "url|extmetadata")
	params.Set("iiurlwidth", "1920")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating commons request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching commons: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("commons search returned status %d", resp.StatusCode)
	}

	var data commonsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding commons response: %w", err)
	}

	type ranked struct {
		index int
		cand  domain.Candidate
	}
	var hits []ranked
	for _, page := range data.Query.Pages {
		if len(page.ImageInfo) == 0 {
			continue
		}
		info := page.ImageInfo[0]
		ext := info.ExtMetadata

		license := strings.TrimSpace(ext["LicenseShortName"].String())
		if license == "" {
			license = strings.TrimSpace(ext["UsageTerms"].String())
		}

		hits = append(hits, ranked{index: page.Index, cand: domain.Candidate{
			ID:           strconv.FormatInt(page.PageID, 10),
			Title:        page.Title,
			URL:          info.DescriptionURL,
			ImageURL:     info.URL,
			ThumbnailURL: info.ThumbURL,
			License:      license,
			LicenseURL:   strings.TrimSpace(ext["LicenseUrl"].String()),
			Creator:      strings.TrimSpace(ext["Artist"].String()),
			Provider:     domain.ProviderWikimedia,
		}})
	}

	// pages is a JSON object; keep the search ranking order.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].index != hits[j].index {
			return hits[i].index < hits[j].index
		}
		return hits[i].cand.ID < hits[j].cand.ID
	})

	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.cand)
	}
	return out, nil
}

// SetUserAgent overrides DefaultUserAgent.
func (c *CommonsClient) SetUserAgent(ua string) {
	if ua != "" {
		c.userAgent = ua
	}
}
