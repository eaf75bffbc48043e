package profiles

import (
	"testing"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/display"
)

func TestToCandidateAppliesFallbacks(t *testing.T) {
	candidate := ToCandidate(Profile{ID: "user-123", Age: intPointer(0)})
	if candidate.Name != PlaceholderName {
		t.Fatalf("unexpected name %q", candidate.Name)
	}
	if candidate.Age != DefaultAge {
		t.Fatalf("unexpected age %d", candidate.Age)
	}
	if candidate.City != PlaceholderCity {
		t.Fatalf("unexpected city %q", candidate.City)
	}
	if candidate.InterestTag != DefaultTag || candidate.Vibe != DefaultTag {
		t.Fatalf("unexpected tag/vibe %q/%q", candidate.InterestTag, candidate.Vibe)
	}
	if candidate.Interests == nil {
		t.Fatalf("expected empty interests list")
	}
	if candidate.Compatibility != display.Compatibility("user-123") {
		t.Fatalf("compatibility must be seeded by profile id")
	}
	if candidate.Online != display.Online("user-123") {
		t.Fatalf("online must be seeded by profile id")
	}
}

func TestToCandidateKeepsProfileValues(t *testing.T) {
	candidate := ToCandidate(Profile{
		ID:         "u2",
		Name:       "Dewi",
		Age:        intPointer(31),
		City:       "Surabaya",
		Occupation: "Designer",
		Interests:  []string{"yoga", "film"},
	})
	if candidate.Name != "Dewi" || candidate.Age != 31 || candidate.City != "Surabaya" {
		t.Fatalf("unexpected candidate %#v", candidate)
	}
	if candidate.InterestTag != "yoga" || candidate.Vibe != "Designer" {
		t.Fatalf("unexpected tag/vibe %q/%q", candidate.InterestTag, candidate.Vibe)
	}
}

func TestFilterMatches(t *testing.T) {
	base := Candidate{
		ID:          "u1",
		Name:        "Raka",
		Age:         29,
		City:        "Yogyakarta",
		Occupation:  "Engineer",
		Vibe:        "Engineer",
		Interests:   []string{"climbing", "coffee"},
		InterestTag: "climbing",
		Online:      false,
	}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty", filter: Filter{}, want: true},
		{name: "query-name", filter: Filter{Query: " raka "}, want: true},
		{name: "query-vibe", filter: Filter{Query: "engin"}, want: true},
		{name: "query-miss", filter: Filter{Query: "bali"}, want: false},
		{name: "age-in-range", filter: Filter{AgeRange: "25-30"}, want: true},
		{name: "age-out-of-range", filter: Filter{AgeRange: "18-24"}, want: false},
		{name: "age-any", filter: Filter{AgeRange: "Semua"}, want: true},
		{name: "age-unparsable", filter: Filter{AgeRange: "35+"}, want: true},
		{name: "age-open-upper-bound", filter: Filter{AgeRange: "18-"}, want: false},
		{name: "age-open-lower-bound", filter: Filter{AgeRange: "-30"}, want: true},
		{name: "age-extra-bound", filter: Filter{AgeRange: "25-30-40"}, want: true},
		{name: "location", filter: Filter{Location: "yogya"}, want: true},
		{name: "location-miss", filter: Filter{Location: "Medan"}, want: false},
		{name: "occupation", filter: Filter{Occupation: "ENGINEER"}, want: true},
		{name: "occupation-miss", filter: Filter{Occupation: "chef"}, want: false},
		{name: "interest-secondary", filter: Filter{Interest: "coff"}, want: true},
		{name: "interest-miss", filter: Filter{Interest: "surf"}, want: false},
		{name: "online-only", filter: Filter{OnlineOnly: true}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(base); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFilterApplyPreservesOrder(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", City: "Bandung", Age: 25},
		{ID: "b", City: "Jakarta", Age: 25},
		{ID: "c", City: "Bandung Barat", Age: 25},
	}
	filtered := Filter{Location: "bandung"}.Apply(candidates)
	if len(filtered) != 2 || filtered[0].ID != "a" || filtered[1].ID != "c" {
		t.Fatalf("unexpected filter result %#v", filtered)
	}
}
