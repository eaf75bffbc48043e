package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/contents"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/users"
)

func TestAdminRoutesRequireAdministrativeRole(t *testing.T) {
	harness := newAPIHarness(t)
	member := harness.signUpAndIn(t, "member@example.com", "Member")

	status, body := harness.do(t, http.MethodGet, "/admin/users", member.token, nil)
	if status != http.StatusForbidden || errorCode(t, body) != "users.role_of.not_admin" {
		t.Fatalf("expected forbidden for member, got %d %s", status, body)
	}

	if err := harness.users.EnsureBootstrapAdmin(context.Background(), "root@example.com", testPassword); err != nil {
		t.Fatalf("failed to bootstrap admin: %v", err)
	}
	root := harness.signIn(t, "root@example.com", testPassword)

	status, body = harness.do(t, http.MethodPost, "/admin/admins", root.token, map[string]string{
		"email":    "helper@example.com",
		"password": "helper-pass",
		"role":     string(users.RoleAdmin),
	})
	if status != http.StatusCreated {
		t.Fatalf("create admin failed: %d %s", status, body)
	}
	var created users.AdminUser
	decode(t, body, &created)

	helper := harness.signIn(t, "helper@example.com", "helper-pass")
	status, _ = harness.do(t, http.MethodGet, "/admin/users", helper.token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected admin to list users, got %d", status)
	}
	status, body = harness.do(t, http.MethodGet, "/admin/admins", helper.token, nil)
	if status != http.StatusForbidden || errorCode(t, body) != "users.role_of.not_superadmin" {
		t.Fatalf("expected admin management to require superadmin, got %d %s", status, body)
	}

	status, _ = harness.do(t, http.MethodPatch, "/admin/admins/"+created.ID, root.token, map[string]string{"role": "owner"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected invalid role rejection, got %d", status)
	}
	status, _ = harness.do(t, http.MethodDelete, "/admin/admins/missing", root.token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected unknown admin to be not found, got %d", status)
	}
	status, _ = harness.do(t, http.MethodDelete, "/admin/admins/"+created.ID, root.token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected admin deletion, got %d", status)
	}
}

func TestAdminManagesMembers(t *testing.T) {
	harness := newAPIHarness(t)
	if err := harness.users.EnsureBootstrapAdmin(context.Background(), "root@example.com", testPassword); err != nil {
		t.Fatalf("failed to bootstrap admin: %v", err)
	}
	root := harness.signIn(t, "root@example.com", testPassword)

	status, body := harness.do(t, http.MethodPost, "/admin/users", root.token, map[string]any{
		"email":     "bunga@example.com",
		"password":  "bunga-pass",
		"name":      "Bunga",
		"city":      "Bandung",
		"interests": []string{"kopi", "Kopi", "hiking"},
	})
	if status != http.StatusCreated {
		t.Fatalf("create member failed: %d %s", status, body)
	}
	var created struct {
		User    users.User       `json:"user"`
		Profile profiles.Profile `json:"profile"`
	}
	decode(t, body, &created)
	if len(created.Profile.Interests) != 2 {
		t.Fatalf("expected deduplicated interests, got %#v", created.Profile.Interests)
	}

	status, body = harness.do(t, http.MethodPatch, "/admin/users/"+created.User.ID, root.token, map[string]any{"age": 27, "city": "Bogor"})
	if status != http.StatusOK {
		t.Fatalf("admin patch failed: %d %s", status, body)
	}
	status, _ = harness.do(t, http.MethodPatch, "/admin/users/unknown", root.token, map[string]any{"city": "Bogor"})
	if status != http.StatusNotFound {
		t.Fatalf("expected unknown member to be not found, got %d", status)
	}

	status, body = harness.do(t, http.MethodGet, "/admin/users", root.token, nil)
	if status != http.StatusOK {
		t.Fatalf("list users failed: %d %s", status, body)
	}
	var listed struct {
		Users []struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			City  string `json:"city"`
		} `json:"users"`
	}
	decode(t, body, &listed)
	found := false
	for _, row := range listed.Users {
		if row.ID == created.User.ID {
			found = row.Email == "bunga@example.com" && row.City == "Bogor"
		}
	}
	if !found {
		t.Fatalf("expected member row merged with email, got %s", body)
	}
}

func TestProfileEditingAndPhotoUpload(t *testing.T) {
	harness := newAPIHarness(t)
	sari := harness.signUpAndIn(t, "sari@example.com", "Sari")

	status, body := harness.do(t, http.MethodPatch, "/profile", sari.token, map[string]any{"age": "", "about": "Suka kopi"})
	if status != http.StatusOK {
		t.Fatalf("profile patch failed: %d %s", status, body)
	}
	status, body = harness.do(t, http.MethodPatch, "/profile", sari.token, map[string]any{})
	if status != http.StatusBadRequest || errorCode(t, body) != "profiles.decode_patch.empty_patch" {
		t.Fatalf("expected empty patch rejection, got %d %s", status, body)
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	if err := writer.WriteField("slot", profiles.SlotGalleryA); err != nil {
		t.Fatalf("failed to write slot: %v", err)
	}
	part, err := writer.CreateFormFile("file", "pantai.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte("png-bytes")); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	request, err := http.NewRequest(http.MethodPost, harness.server.URL+"/profile/photos", &form)
	if err != nil {
		t.Fatalf("failed to build upload request: %v", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	request.Header.Set("Authorization", "Bearer "+sari.token)

	status, body = harness.send(t, request)
	if status != http.StatusCreated {
		t.Fatalf("upload failed: %d %s", status, body)
	}
	var uploaded photoResponsePayload
	decode(t, body, &uploaded)
	if !strings.HasPrefix(uploaded.Object.PublicURL, storageRoutePrefix+"/"+sari.userID+"/") {
		t.Fatalf("unexpected public url %q", uploaded.Object.PublicURL)
	}
	if len(uploaded.Profile.GalleryA) != 1 || uploaded.Profile.GalleryA[0] != uploaded.Object.PublicURL {
		t.Fatalf("expected photo attached to gallery_a, got %#v", uploaded.Profile.GalleryA)
	}

	status, body = harness.do(t, http.MethodGet, uploaded.Object.PublicURL, "", nil)
	if status != http.StatusOK || string(body) != "png-bytes" {
		t.Fatalf("expected uploaded object to be served, got %d %q", status, body)
	}
}

func TestMatchBoardFiltersCandidates(t *testing.T) {
	harness := newAPIHarness(t)
	viewer := harness.signUpAndIn(t, "viewer@example.com", "Viewer")
	other := harness.signUpAndIn(t, "dewi@example.com", "Dewi")
	harness.signUpAndIn(t, "rani@example.com", "Rani")

	status, body := harness.do(t, http.MethodPatch, "/profile", other.token, map[string]any{"city": "Jakarta", "age": 30})
	if status != http.StatusOK {
		t.Fatalf("profile patch failed: %d %s", status, body)
	}

	status, body = harness.do(t, http.MethodGet, "/match/profiles", viewer.token, nil)
	if status != http.StatusOK {
		t.Fatalf("match listing failed: %d %s", status, body)
	}
	var all struct {
		Profiles []profiles.Candidate `json:"profiles"`
	}
	decode(t, body, &all)
	if len(all.Profiles) != 2 {
		t.Fatalf("expected two candidates excluding the viewer, got %d", len(all.Profiles))
	}

	status, body = harness.do(t, http.MethodGet, "/match/profiles?location=jakarta&age=25-35", viewer.token, nil)
	if status != http.StatusOK {
		t.Fatalf("filtered listing failed: %d %s", status, body)
	}
	var filtered struct {
		Profiles []profiles.Candidate `json:"profiles"`
	}
	decode(t, body, &filtered)
	if len(filtered.Profiles) != 1 || filtered.Profiles[0].ID != other.userID {
		t.Fatalf("unexpected filtered candidates %#v", filtered.Profiles)
	}
}

func TestAdminManagesOwnContents(t *testing.T) {
	harness := newAPIHarness(t)
	member := harness.signUpAndIn(t, "member@example.com", "Member")
	if err := harness.users.EnsureBootstrapAdmin(context.Background(), "root@example.com", testPassword); err != nil {
		t.Fatalf("failed to bootstrap admin: %v", err)
	}
	root := harness.signIn(t, "root@example.com", testPassword)

	status, body := harness.do(t, http.MethodGet, "/admin/contents", member.token, nil)
	if status != http.StatusForbidden || errorCode(t, body) != "users.role_of.not_admin" {
		t.Fatalf("expected members to be kept out of contents, got %d %s", status, body)
	}

	status, body = harness.do(t, http.MethodPost, "/admin/contents", root.token, map[string]string{"title": "Tips kencan", "body": "Jadi diri sendiri."})
	if status != http.StatusCreated {
		t.Fatalf("create content failed: %d %s", status, body)
	}
	var created contents.Content
	decode(t, body, &created)
	if created.Status != contents.StatusDraft || created.CreatedBy != root.userID {
		t.Fatalf("unexpected created content %#v", created)
	}

	status, body = harness.do(t, http.MethodPost, "/admin/contents", root.token, map[string]string{"title": "Judul", "status": "archived"})
	if status != http.StatusBadRequest || errorCode(t, body) != "contents.create.invalid_content" {
		t.Fatalf("expected invalid status rejection, got %d %s", status, body)
	}

	status, body = harness.do(t, http.MethodPatch, "/admin/contents/"+created.ID, root.token, map[string]string{"status": contents.StatusPublished})
	if status != http.StatusOK {
		t.Fatalf("update content failed: %d %s", status, body)
	}
	var updated contents.Content
	decode(t, body, &updated)
	if updated.Status != contents.StatusPublished || updated.Title != "Tips kencan" {
		t.Fatalf("unexpected updated content %#v", updated)
	}

	status, body = harness.do(t, http.MethodGet, "/admin/contents", root.token, nil)
	if status != http.StatusOK {
		t.Fatalf("list contents failed: %d %s", status, body)
	}
	var listed struct {
		Contents []contents.Content `json:"contents"`
	}
	decode(t, body, &listed)
	if len(listed.Contents) != 1 || listed.Contents[0].ID != created.ID {
		t.Fatalf("unexpected contents %#v", listed.Contents)
	}

	status, _ = harness.do(t, http.MethodDelete, "/admin/contents/"+created.ID, root.token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected content deletion, got %d", status)
	}
	status, _ = harness.do(t, http.MethodDelete, "/admin/contents/"+created.ID, root.token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected deleted content to be not found, got %d", status)
	}
}
