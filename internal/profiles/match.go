package profiles

import (
	"math"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/display"
)

const anyAgeLabel = "semua"

// Candidate is a profile as presented on the match board.
type Candidate struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Age           int      `json:"age"`
	City          string   `json:"city"`
	Occupation    string   `json:"occupation"`
	Vibe          string   `json:"vibe"`
	About         string   `json:"about"`
	Interests     []string `json:"interests"`
	InterestTag   string   `json:"interest_tag"`
	MainPhoto     string   `json:"main_photo"`
	Compatibility int      `json:"compatibility"`
	Online        bool     `json:"online"`
}

// ToCandidate applies the display fallbacks. Compatibility and online are seeded by the profile id.
func ToCandidate(profile Profile) Candidate {
	profile = profile.Normalize()
	age := DefaultAge
	if profile.Age != nil && *profile.Age > 0 {
		age = *profile.Age
	}
	city := strings.TrimSpace(profile.City)
	if city == "" {
		city = PlaceholderCity
	}
	tag := DefaultTag
	if len(profile.Interests) > 0 {
		tag = profile.Interests[0]
	}
	vibe := strings.TrimSpace(profile.Occupation)
	if vibe == "" {
		vibe = DefaultTag
	}
	return Candidate{
		ID:            profile.ID,
		Name:          profile.DisplayName(),
		Age:           age,
		City:          city,
		Occupation:    profile.Occupation,
		Vibe:          vibe,
		About:         profile.About,
		Interests:     profile.Interests,
		InterestTag:   tag,
		MainPhoto:     profile.MainPhoto,
		Compatibility: display.Compatibility(profile.ID),
		Online:        display.Online(profile.ID),
	}
}

// Filter narrows the match board. Zero values match everything.
type Filter struct {
	Query      string
	AgeRange   string
	Location   string
	Occupation string
	Interest   string
	OnlineOnly bool
}

// Matches reports whether candidate passes every active criterion. Text criteria are
// case-insensitive substring checks.
func (f Filter) Matches(candidate Candidate) bool {
	if query := normalizeTerm(f.Query); query != "" {
		haystack := strings.ToLower(candidate.Name + " " + candidate.City + " " + candidate.Vibe)
		if !strings.Contains(haystack, query) {
			return false
		}
	}
	if !ageInRange(candidate.Age, f.AgeRange) {
		return false
	}
	if location := normalizeTerm(f.Location); location != "" {
		if !strings.Contains(strings.ToLower(candidate.City), location) {
			return false
		}
	}
	if occupation := normalizeTerm(f.Occupation); occupation != "" {
		if !containsAny([]string{candidate.Occupation}, occupation) {
			return false
		}
	}
	if interest := normalizeTerm(f.Interest); interest != "" {
		sources := append([]string{candidate.InterestTag}, candidate.Interests...)
		if !containsAny(sources, interest) {
			return false
		}
	}
	if f.OnlineOnly && !candidate.Online {
		return false
	}
	return true
}

// Apply returns the candidates passing the filter, preserving order.
func (f Filter) Apply(candidates []Candidate) []Candidate {
	filtered := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if f.Matches(candidate) {
			filtered = append(filtered, candidate)
		}
	}
	return filtered
}

// ageInRange accepts "min-max". Empty or "Semua" match any age, as does a range with an
// unparsable bound. A blank bound counts as 0, so "18-" matches nobody.
func ageInRange(age int, ageRange string) bool {
	trimmed := strings.TrimSpace(ageRange)
	if trimmed == "" || strings.EqualFold(trimmed, anyAgeLabel) {
		return true
	}
	bounds := strings.Split(trimmed, "-")
	if len(bounds) < 2 {
		return true
	}
	minimum, ok := parseAgeBound(bounds[0])
	if !ok {
		return true
	}
	maximum, ok := parseAgeBound(bounds[1])
	if !ok {
		return true
	}
	value := float64(age)
	return value >= minimum && value <= maximum
}

func parseAgeBound(bound string) (float64, bool) {
	bound = strings.TrimSpace(bound)
	if bound == "" {
		return 0, true
	}
	value, err := strconv.ParseFloat(bound, 64)
	if err != nil || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}

func containsAny(sources []string, term string) bool {
	for _, source := range sources {
		if strings.Contains(strings.ToLower(source), term) {
			return true
		}
	}
	return false
}

func normalizeTerm(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
