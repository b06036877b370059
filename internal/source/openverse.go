package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"imagepool/internal/domain"
)

// OpenverseAPI is the Openverse image search endpoint.
const OpenverseAPI = "https://api.openverse.engineering/v1/images"

// OpenverseClient searches Openverse for commercially reusable images.
type OpenverseClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewOpenverseClient creates an Openverse client with the given HTTP client.
func NewOpenverseClient(client *http.Client) *OpenverseClient {
	return NewOpenverseClientWithBaseURL(client, OpenverseAPI)
}

// NewOpenverseClientWithBaseURL creates an Openverse client with a custom endpoint (for testing).
func NewOpenverseClientWithBaseURL(client *http.Client, baseURL string) *OpenverseClient {
	return &OpenverseClient{
		client:    defaultClient(client),
		baseURL:   baseURL,
		userAgent: DefaultUserAgent,
	}
}

func (c *OpenverseClient) Provider() string { return domain.ProviderOpenverse }

type openverseResponse struct {
	Results []struct {
		ID                string `json:"id"`
		Title             string `json:"title"`
		URL               string `json:"url"`
		Thumbnail         string `json:"thumbnail"`
		ForeignLandingURL string `json:"foreign_landing_url"`
		License           string `json:"license"`
		LicenseURL        string `json:"license_url"`
		Creator           string `json:"creator"`
	} `json:"results"`
}

// Search queries Openverse excluding non-commercial and mature results.
func (c *OpenverseClient) Search(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	limit = clampLimit(limit)

	params := url.Values{}
	params.Set("q", query)
	params.Set("page_size", strconv.Itoa(limit))
	params.Set("license_type", "commercial")
	params.Set("mature", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating openverse request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching openverse: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openverse search returned status %d", resp.StatusCode)
	}

	var data openverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding openverse response: %w", err)
	}

	out := make([]domain.Candidate, 0, len(data.Results))
	for _, it := range data.Results {
		if len(out) >= limit {
			break
		}
		landing := it.ForeignLandingURL
		if landing == "" {
			landing = it.URL
		}
		image := it.URL
		if image == "" {
			image = it.Thumbnail
		}
		out = append(out, domain.Candidate{
			ID:           it.ID,
			Title:        it.Title,
			URL:          landing,
			ImageURL:     image,
			ThumbnailURL: it.Thumbnail,
			License:      strings.ToUpper(it.License),
			LicenseURL:   it.LicenseURL,
			Creator:      it.Creator,
			Provider:     domain.ProviderOpenverse,
		})
	}
	return out, nil
}

// SetUserAgent overrides DefaultUserAgent.
func (c *OpenverseClient) SetUserAgent(ua string) {
	if ua != "" {
		c.userAgent = ua
	}
}
