package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/reviewagent/reviewagent/internal/config"
)

const defaultGooglePlacesBaseURL = "https://maps.googleapis.com/maps/api/place"

// GooglePlacesClient fetches place details and reviews from the Google
// Places API: a text search resolves the query to a place_id, then a details
// call returns rating and reviews.
type GooglePlacesClient struct {
	apiKey  string
	baseURL string
	limit   int
	client  *http.Client
}

// NewGooglePlacesClient creates a new GooglePlacesClient.
func NewGooglePlacesClient(cfg config.ProviderConfig, reviewLimit int) *GooglePlacesClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGooglePlacesBaseURL
	}
	return &GooglePlacesClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		limit:   reviewLimit,
		client:  &http.Client{},
	}
}

// Provider implements Fetcher.
func (c *GooglePlacesClient) Provider() Provider { return ProviderGooglePlaces }

type placesSearchResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID string `json:"place_id"`
	} `json:"results"`
}

type placesDetailsResponse struct {
	Status string `json:"status"`
	Result struct {
		Name             string  `json:"name"`
		FormattedAddress string  `json:"formatted_address"`
		Rating           float64 `json:"rating"`
		UserRatingsTotal int     `json:"user_ratings_total"`
		Reviews          []struct {
			Rating float64 `json:"rating"`
			Text   string  `json:"text"`
			Time   int64   `json:"time"`
		} `json:"reviews"`
	} `json:"result"`
}

// Fetch implements Fetcher.
func (c *GooglePlacesClient) Fetch(ctx context.Context, query string) (Report, error) {
	query, err := validateQuery(query)
	if err != nil {
		return Report{}, err
	}

	var search placesSearchResponse
	params := url.Values{"query": {query}, "key": {c.apiKey}}
	if err := c.get(ctx, "/textsearch/json", params, &search); err != nil {
		return Report{}, err
	}
	if search.Status == "ZERO_RESULTS" || len(search.Results) == 0 {
		return Report{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	}
	if search.Status != "OK" {
		return Report{}, fmt.Errorf("google places search status %s", search.Status)
	}

	var details placesDetailsResponse
	params = url.Values{
		"place_id": {search.Results[0].PlaceID},
		"fields":   {"name,formatted_address,rating,user_ratings_total,reviews"},
		"key":      {c.apiKey},
	}
	if err := c.get(ctx, "/details/json", params, &details); err != nil {
		return Report{}, err
	}
	if details.Status != "OK" {
		return Report{}, fmt.Errorf("google places details status %s", details.Status)
	}

	report := Report{
		Provider:     ProviderGooglePlaces,
		Name:         details.Result.Name,
		Address:      details.Result.FormattedAddress,
		Rating:       details.Result.Rating,
		TotalReviews: details.Result.UserRatingsTotal,
	}
	reviews := details.Result.Reviews
	sort.SliceStable(reviews, func(i, j int) bool { return reviews[i].Time > reviews[j].Time })
	for _, r := range reviews {
		if c.limit > 0 && len(report.Excerpts) >= c.limit {
			break
		}
		report.Excerpts = append(report.Excerpts, Excerpt{
			Rating:    r.Rating,
			Text:      r.Text,
			Published: time.Unix(r.Time, 0).UTC(),
		})
	}
	return report, nil
}

func (c *GooglePlacesClient) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google places: unexpected status code: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
