// Package reviews fans out place-review lookups to independent review-data
// providers and normalizes the results. Provider failures are carried
// per-provider and never abort the other providers or the caller.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider identifies a review-data source.
type Provider string

const (
	ProviderGooglePlaces Provider = "google_places"
	ProviderTripAdvisor  Provider = "tripadvisor"
)

// ErrNotFound is returned by a fetcher when the place does not exist in that
// provider's database.
var ErrNotFound = errors.New("place not found")

// Excerpt is a single review excerpt, attributed to its provider via the
// Report it belongs to.
type Excerpt struct {
	Rating    float64
	Text      string
	Published time.Time
}

// Report is a provider's normalized answer for one place query.
type Report struct {
	Provider     Provider
	Name         string
	Address      string
	Rating       float64
	TotalReviews int
	Excerpts     []Excerpt
}

// Result pairs a provider's report with the error that replaced it.
// Exactly one of the two is meaningful.
type Result struct {
	Report Report
	Err    error
}

// Fetcher is a single review-data provider.
type Fetcher interface {
	Provider() Provider
	Fetch(ctx context.Context, query string) (Report, error)
}

// validateQuery sanitizes a place query before it reaches a provider API.
func validateQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return "", fmt.Errorf("place query must be at least 2 characters long")
	}
	if len(query) > 200 {
		return "", fmt.Errorf("place query must be less than 200 characters")
	}
	return query, nil
}
