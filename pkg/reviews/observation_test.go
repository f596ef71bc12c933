package reviews

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatObservation_AttributesEachProvider(t *testing.T) {
	results := map[Provider]Result{
		ProviderGooglePlaces: {Report: Report{
			Provider:     ProviderGooglePlaces,
			Name:         "Cafe Bloom",
			Address:      "12 Flower Street, Lisbon",
			Rating:       4.5,
			TotalReviews: 321,
			Excerpts: []Excerpt{
				{Rating: 5, Text: "Great coffee."},
				{Rating: 4, Text: "Nice terrace."},
			},
		}},
		ProviderTripAdvisor: {Report: Report{
			Provider:     ProviderTripAdvisor,
			Name:         "Cafe Bloom",
			Address:      "12 Flower St, Lisbon",
			Rating:       4.0,
			TotalReviews: 87,
		}},
	}

	obs := FormatObservation("Cafe Bloom", results)
	require.Contains(t, obs, `PLACE REVIEWS for query "Cafe Bloom"`)
	require.Contains(t, obs, "Source: Google Places")
	require.Contains(t, obs, "Source: TripAdvisor")
	require.Contains(t, obs, "Overall Rating: 4.5/5.0")
	require.Contains(t, obs, "Overall Rating: 4.0/5.0")
	require.Contains(t, obs, "1. [5.0/5.0] Great coffee.")
	require.NotContains(t, obs, "WARNING")
}

// A failed provider gets an explicit error section instead of disappearing.
func TestFormatObservation_FailedProviderIsMarked(t *testing.T) {
	results := map[Provider]Result{
		ProviderGooglePlaces: {Report: Report{Provider: ProviderGooglePlaces, Name: "Cafe Bloom", Rating: 4.5}},
		ProviderTripAdvisor:  {Err: errors.New("timeout")},
	}

	obs := FormatObservation("Cafe Bloom", results)
	require.Contains(t, obs, "Source: TripAdvisor")
	require.Contains(t, obs, "Status: ERROR - timeout")
	require.Contains(t, obs, "do not invent any")
	require.Contains(t, obs, "Cafe Bloom")
}

// Every provider down still yields a well-formed observation.
func TestFormatObservation_AllFailed(t *testing.T) {
	results := map[Provider]Result{
		ProviderGooglePlaces: {Err: errors.New("down")},
		ProviderTripAdvisor:  {Err: errors.New("also down")},
	}

	obs := FormatObservation("Cafe Bloom", results)
	require.Contains(t, obs, "Status: ERROR - down")
	require.Contains(t, obs, "Status: ERROR - also down")
	require.NotContains(t, obs, "WARNING")
}

// Two providers resolving the query to different places produce an explicit
// warning so the model presents them separately.
func TestFormatObservation_DifferentPlacesWarning(t *testing.T) {
	results := map[Provider]Result{
		ProviderGooglePlaces: {Report: Report{
			Provider: ProviderGooglePlaces,
			Name:     "Cafe Bloom",
			Address:  "12 Flower Street, Lisbon",
		}},
		ProviderTripAdvisor: {Report: Report{
			Provider: ProviderTripAdvisor,
			Name:     "Bloom Garden Restaurant",
			Address:  "99 Harbor Avenue, Porto",
		}},
	}

	obs := FormatObservation("Bloom", results)
	require.Contains(t, obs, "WARNING")
	require.Contains(t, obs, "DIFFERENT places")
	require.Contains(t, obs, "ask the user which place they meant")
}

func TestSamePlace(t *testing.T) {
	require.True(t, samePlace(
		Report{Name: "Cafe Bloom", Address: "12 Flower Street, Lisbon"},
		Report{Name: "Cafe Bloom Lisbon", Address: "12 Flower St., Lisbon"},
	))
	require.False(t, samePlace(
		Report{Name: "Cafe Bloom", Address: "12 Flower Street, Lisbon"},
		Report{Name: "Bloom Garden", Address: "99 Harbor Avenue, Porto"},
	))
}
