package profiles

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
)

const opDecodePatch = "profiles.decode_patch"

var (
	errPatchNotObject = errors.New("payload must be a JSON object")
	errNotString      = errors.New("value must be a string or null")
	errNotStringList  = errors.New("value must be an array of strings")
	errNotInteger     = errors.New("age must be an integer or null")
	errEmptyPatch     = errors.New("no changes submitted")
)

// Patch is a partial profile update. Nil pointers leave the column untouched.
type Patch struct {
	Name       *string
	City       *string
	Status     *string
	Occupation *string
	About      *string
	MainPhoto  *string
	AgeSet     bool
	Age        *int
	Interests  *[]string
	GalleryA   *[]string
	GalleryB   *[]string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.City == nil && p.Status == nil && p.Occupation == nil &&
		p.About == nil && p.MainPhoto == nil && !p.AgeSet &&
		p.Interests == nil && p.GalleryA == nil && p.GalleryB == nil
}

// DecodePatch parses a JSON object into a Patch. Only keys present in the body are applied.
// Text fields accept strings or null, list fields must be arrays of strings, and age must be
// an integer, null or the empty string.
func DecodePatch(body []byte) (Patch, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Patch{}, apperrors.InvalidRequest(opDecodePatch, "invalid_payload", errPatchNotObject)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Patch{}, apperrors.InvalidRequest(opDecodePatch, "invalid_payload", err)
	}

	var patch Patch
	textFields := []struct {
		key    string
		target **string
	}{
		{key: "name", target: &patch.Name},
		{key: "city", target: &patch.City},
		{key: "status", target: &patch.Status},
		{key: "occupation", target: &patch.Occupation},
		{key: "about", target: &patch.About},
		{key: "main_photo", target: &patch.MainPhoto},
	}
	for _, field := range textFields {
		raw, ok := fields[field.key]
		if !ok {
			continue
		}
		value, err := decodeText(raw)
		if err != nil {
			return Patch{}, apperrors.InvalidRequest(opDecodePatch, "invalid_"+field.key, err)
		}
		*field.target = &value
	}

	listFields := []struct {
		key    string
		target **[]string
	}{
		{key: "interests", target: &patch.Interests},
		{key: "gallery_a", target: &patch.GalleryA},
		{key: "gallery_b", target: &patch.GalleryB},
	}
	for _, field := range listFields {
		raw, ok := fields[field.key]
		if !ok {
			continue
		}
		values, err := decodeList(raw)
		if err != nil {
			return Patch{}, apperrors.InvalidRequest(opDecodePatch, "invalid_"+field.key, err)
		}
		*field.target = &values
	}

	if raw, ok := fields["age"]; ok {
		age, err := decodeAge(raw)
		if err != nil {
			return Patch{}, apperrors.InvalidRequest(opDecodePatch, "invalid_age", err)
		}
		patch.AgeSet = true
		patch.Age = age
	}

	if patch.IsEmpty() {
		return Patch{}, apperrors.InvalidRequest(opDecodePatch, "empty_patch", errEmptyPatch)
	}
	return patch, nil
}

func decodeText(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", errNotString
	}
	return value, nil
}

func decodeList(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, errNotStringList
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errNotStringList
	}
	return values, nil
}

func decodeAge(raw json.RawMessage) (*int, error) {
	if isNull(raw) || string(bytes.TrimSpace(raw)) == `""` {
		return nil, nil
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err != nil {
		return nil, errNotInteger
	}
	if number != math.Trunc(number) || number < 0 || number > math.MaxInt32 {
		return nil, errNotInteger
	}
	age := int(number)
	return &age, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// Apply returns profile with the patch applied. Lists are cleaned and interests capped.
func (p Patch) Apply(profile Profile) Profile {
	assign := func(target *string, value *string) {
		if value != nil {
			*target = *value
		}
	}
	assign(&profile.Name, p.Name)
	assign(&profile.City, p.City)
	assign(&profile.Status, p.Status)
	assign(&profile.Occupation, p.Occupation)
	assign(&profile.About, p.About)
	assign(&profile.MainPhoto, p.MainPhoto)
	if p.AgeSet {
		profile.Age = p.Age
	}
	if p.Interests != nil {
		profile.Interests = cleanList(*p.Interests, maxInterests)
	}
	if p.GalleryA != nil {
		profile.GalleryA = cleanList(*p.GalleryA, 0)
	}
	if p.GalleryB != nil {
		profile.GalleryB = cleanList(*p.GalleryB, 0)
	}
	return profile.Normalize()
}
