package profiles

import (
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
)

func TestDecodePatchRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{name: "not-object", body: `["name"]`, reason: "invalid_payload"},
		{name: "empty-body", body: ``, reason: "invalid_payload"},
		{name: "empty-object", body: `{}`, reason: "empty_patch"},
		{name: "unknown-keys-only", body: `{"nickname":"x"}`, reason: "empty_patch"},
		{name: "interests-not-array", body: `{"interests":"music"}`, reason: "invalid_interests"},
		{name: "gallery-null", body: `{"gallery_a":null}`, reason: "invalid_gallery_a"},
		{name: "gallery-mixed", body: `{"gallery_b":["a",1]}`, reason: "invalid_gallery_b"},
		{name: "age-fraction", body: `{"age":27.5}`, reason: "invalid_age"},
		{name: "age-text", body: `{"age":"27"}`, reason: "invalid_age"},
		{name: "name-number", body: `{"name":42}`, reason: "invalid_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePatch([]byte(tt.body))
			if !apperrors.Is(err, apperrors.KindInvalidRequest) {
				t.Fatalf("expected invalid request, got %v", err)
			}
			if reason := apperrors.ReasonOf(err); reason != tt.reason {
				t.Fatalf("expected reason %s, got %s", tt.reason, reason)
			}
		})
	}
}

func TestDecodePatchAcceptsNullsAndIntegers(t *testing.T) {
	patch, err := DecodePatch([]byte(`{"name":null,"age":"","about":"hi"}`))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if patch.Name == nil || *patch.Name != "" {
		t.Fatalf("expected name to be cleared")
	}
	if !patch.AgeSet || patch.Age != nil {
		t.Fatalf("expected age to be cleared")
	}

	patch, err = DecodePatch([]byte(`{"age":30}`))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !patch.AgeSet || patch.Age == nil || *patch.Age != 30 {
		t.Fatalf("expected age 30")
	}
}

func TestPatchApplyCapsInterests(t *testing.T) {
	interests := make([]string, 0, 30)
	for index := 0; index < 30; index++ {
		interests = append(interests, "tag-"+strings.Repeat("x", index+1))
	}
	profile := Patch{Interests: &interests}.Apply(Profile{ID: "u"})
	if len(profile.Interests) != maxInterests {
		t.Fatalf("expected %d interests, got %d", maxInterests, len(profile.Interests))
	}
	if profile.GalleryA == nil {
		t.Fatalf("expected normalized gallery")
	}
}
