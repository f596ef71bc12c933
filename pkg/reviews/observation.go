package reviews

import (
	"fmt"
	"sort"
	"strings"
)

// FormatObservation renders the aggregated results as the attributed
// observation text fed back to the model. Each provider keeps its own
// section so claims in the final answer stay attributable; failed providers
// get an explicit error line rather than being silently dropped.
func FormatObservation(query string, results map[Provider]Result) string {
	providers := make([]Provider, 0, len(results))
	for p := range results {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "PLACE REVIEWS for query %q\n", query)

	var reports []Report
	for _, p := range providers {
		r := results[p]
		b.WriteString(strings.Repeat("=", 40) + "\n")
		fmt.Fprintf(&b, "Source: %s\n", providerLabel(p))
		if r.Err != nil {
			fmt.Fprintf(&b, "Status: ERROR - %v\n", r.Err)
			b.WriteString("No data is available from this source; do not invent any.\n")
			continue
		}
		reports = append(reports, r.Report)
		fmt.Fprintf(&b, "Place: %s\n", r.Report.Name)
		if r.Report.Address != "" {
			fmt.Fprintf(&b, "Address: %s\n", r.Report.Address)
		}
		if r.Report.Rating > 0 {
			fmt.Fprintf(&b, "Overall Rating: %.1f/5.0\n", r.Report.Rating)
		}
		if r.Report.TotalReviews > 0 {
			fmt.Fprintf(&b, "Total Reviews: %d\n", r.Report.TotalReviews)
		}
		if len(r.Report.Excerpts) == 0 {
			b.WriteString("Reviews: none available\n")
			continue
		}
		fmt.Fprintf(&b, "Latest reviews (%d):\n", len(r.Report.Excerpts))
		for i, e := range r.Report.Excerpts {
			fmt.Fprintf(&b, "%d. ", i+1)
			if e.Rating > 0 {
				fmt.Fprintf(&b, "[%.1f/5.0] ", e.Rating)
			}
			b.WriteString(e.Text + "\n")
		}
	}

	if len(reports) == 2 && !samePlace(reports[0], reports[1]) {
		b.WriteString(strings.Repeat("=", 40) + "\n")
		b.WriteString("WARNING: the providers returned what appear to be DIFFERENT places.\n")
		for _, r := range reports {
			fmt.Fprintf(&b, "- %s: %s at %s\n", providerLabel(r.Provider), r.Name, orUnknown(r.Address))
		}
		b.WriteString("Present them separately and ask the user which place they meant.\n")
	}
	return b.String()
}

func providerLabel(p Provider) string {
	switch p {
	case ProviderGooglePlaces:
		return "Google Places"
	case ProviderTripAdvisor:
		return "TripAdvisor"
	default:
		return string(p)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown address"
	}
	return s
}

// samePlace compares two reports by their addresses, falling back to names.
// Two significant shared words are taken as a match; street-suffix noise and
// short filler words are ignored.
func samePlace(a, b Report) bool {
	if overlap(significantWords(a.Address), significantWords(b.Address)) >= 2 {
		return true
	}
	return overlap(significantWords(a.Name), significantWords(b.Name)) >= 2
}

func significantWords(s string) map[string]struct{} {
	s = strings.ToLower(s)
	s = strings.NewReplacer(".", "", ",", "", " street", " st", " avenue", " ave", " road", " rd").Replace(s)
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		if len(w) > 3 {
			out[w] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
