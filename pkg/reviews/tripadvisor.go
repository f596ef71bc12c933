package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/reviewagent/reviewagent/internal/config"
)

const defaultTripAdvisorBaseURL = "https://api.content.tripadvisor.com/api/v1"

// maxTripAdvisorReviews is the content API's review limit for most accounts.
const maxTripAdvisorReviews = 5

// TripAdvisorClient fetches location details and reviews from the
// TripAdvisor content API: a location search resolves the query to a
// location_id, then details and reviews calls fill the report.
type TripAdvisorClient struct {
	apiKey  string
	baseURL string
	limit   int
	client  *http.Client
}

// NewTripAdvisorClient creates a new TripAdvisorClient.
func NewTripAdvisorClient(cfg config.ProviderConfig, reviewLimit int) *TripAdvisorClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTripAdvisorBaseURL
	}
	if reviewLimit <= 0 || reviewLimit > maxTripAdvisorReviews {
		reviewLimit = maxTripAdvisorReviews
	}
	return &TripAdvisorClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		limit:   reviewLimit,
		client:  &http.Client{},
	}
}

// Provider implements Fetcher.
func (c *TripAdvisorClient) Provider() Provider { return ProviderTripAdvisor }

type tripAdvisorSearchResponse struct {
	Data []struct {
		LocationID string `json:"location_id"`
		Name       string `json:"name"`
	} `json:"data"`
}

type tripAdvisorDetailsResponse struct {
	Name       string `json:"name"`
	AddressObj struct {
		AddressString string `json:"address_string"`
	} `json:"address_obj"`
	Rating     string `json:"rating"`
	NumReviews string `json:"num_reviews"`
}

type tripAdvisorReviewsResponse struct {
	Data []struct {
		Rating        float64 `json:"rating"`
		Text          string  `json:"text"`
		PublishedDate string  `json:"published_date"`
	} `json:"data"`
}

// Fetch implements Fetcher.
func (c *TripAdvisorClient) Fetch(ctx context.Context, query string) (Report, error) {
	query, err := validateQuery(query)
	if err != nil {
		return Report{}, err
	}

	var search tripAdvisorSearchResponse
	params := url.Values{"searchQuery": {query}, "limit": {"1"}}
	if err := c.get(ctx, "/location/search", params, &search); err != nil {
		return Report{}, err
	}
	if len(search.Data) == 0 {
		return Report{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	}
	locationID := search.Data[0].LocationID

	var details tripAdvisorDetailsResponse
	if err := c.get(ctx, "/location/"+locationID, url.Values{}, &details); err != nil {
		return Report{}, err
	}

	var reviews tripAdvisorReviewsResponse
	params = url.Values{"limit": {strconv.Itoa(c.limit)}, "language": {"en"}}
	if err := c.get(ctx, "/location/"+locationID+"/reviews", params, &reviews); err != nil {
		return Report{}, err
	}

	report := Report{
		Provider: ProviderTripAdvisor,
		Name:     details.Name,
		Address:  details.AddressObj.AddressString,
	}
	if report.Name == "" {
		report.Name = search.Data[0].Name
	}
	// The content API encodes numbers as strings.
	report.Rating, _ = strconv.ParseFloat(details.Rating, 64)
	report.TotalReviews, _ = strconv.Atoi(details.NumReviews)

	for _, r := range reviews.Data {
		if len(report.Excerpts) >= c.limit {
			break
		}
		published, _ := time.Parse(time.RFC3339, r.PublishedDate)
		report.Excerpts = append(report.Excerpts, Excerpt{
			Rating:    r.Rating,
			Text:      r.Text,
			Published: published,
		})
	}
	return report, nil
}

func (c *TripAdvisorClient) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
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

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return fmt.Errorf("tripadvisor: invalid API key or authentication failed (401)")
	case http.StatusNotFound:
		return fmt.Errorf("tripadvisor: %w", ErrNotFound)
	default:
		return fmt.Errorf("tripadvisor: unexpected status code: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
