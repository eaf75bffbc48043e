package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/messaging"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/realtime"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/timeline"
	"github.com/spf13/afero"
)

var fixedNow = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.Handler, sessions SessionStore) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Sessions:   sessions,
		Clock:      func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func signInHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request map[string]string
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("failed to decode sign-in body: %v", err)
		}
		if request["password"] != "Rahasia123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "users.sign_in.invalid_credentials", "message": "email or password is incorrect"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "token-1",
			"expires_in":   3600,
			"token_type":   "Bearer",
			"user":         map[string]string{"id": "u1", "email": request["email"]},
		})
	}
}

func TestSignInPersistsSessionForRestore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", signInHandler(t))
	filesystem := afero.NewMemMapFs()
	store, err := NewFileSessionStore(filesystem, "/home/sari/.soulmatch/session.json")
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}

	client := newTestClient(t, mux, store)
	session, err := client.SignIn(context.Background(), "sari@example.com", "Rahasia123")
	if err != nil {
		t.Fatalf("unexpected sign-in error: %v", err)
	}
	if session.UserID != "u1" || !session.ExpiresAt.Equal(fixedNow.Add(time.Hour)) {
		t.Fatalf("unexpected session %#v", session)
	}

	restoredClient := newTestClient(t, mux, store)
	restored, ok, err := restoredClient.Restore()
	if err != nil || !ok {
		t.Fatalf("expected restored session (ok=%v, err=%v)", ok, err)
	}
	if restored.AccessToken != "token-1" || restoredClient.Session().Email != "sari@example.com" {
		t.Fatalf("unexpected restored session %#v", restored)
	}
}

func TestSignInFailureMapsToUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", signInHandler(t))
	client := newTestClient(t, mux, nil)

	_, err := client.SignIn(context.Background(), "sari@example.com", "wrong")
	if !apperrors.Is(err, apperrors.KindUnauthorized) || apperrors.ReasonOf(err) != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %v", err)
	}
	if client.Session().AccessToken != "" {
		t.Fatalf("failed sign-in must not set a session")
	}
}

func TestRestoreClearsExpiredSession(t *testing.T) {
	store := &MemorySessionStore{}
	if err := store.Save(Session{AccessToken: "old", ExpiresAt: fixedNow.Add(-time.Minute)}); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	client := newTestClient(t, http.NewServeMux(), store)

	if _, ok, err := client.Restore(); ok || err != nil {
		t.Fatalf("expected expired session to be dropped (ok=%v, err=%v)", ok, err)
	}
	if _, present, _ := store.Load(); present {
		t.Fatalf("expected expired session to be cleared from the store")
	}
}

func TestSignOutClearsSessionWhenRemoteFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", signInHandler(t))
	mux.HandleFunc("/auth/signout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": "internal error"})
	})
	store := &MemorySessionStore{}
	client := newTestClient(t, mux, store)
	if _, err := client.SignIn(context.Background(), "sari@example.com", "Rahasia123"); err != nil {
		t.Fatalf("unexpected sign-in error: %v", err)
	}

	err := client.SignOut(context.Background())
	if !apperrors.Is(err, apperrors.KindUpstreamFailure) {
		t.Fatalf("expected upstream failure to surface, got %v", err)
	}
	if client.Session().AccessToken != "" {
		t.Fatalf("expected local session cleared")
	}
	if _, present, _ := store.Load(); present {
		t.Fatalf("expected stored session cleared")
	}
}

func TestAuthenticatedCallsRequireSession(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/messages/conversations", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	client := newTestClient(t, mux, nil)

	if _, err := client.ListConversations(context.Background()); !apperrors.Is(err, apperrors.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no request without a session")
	}
}

func TestErrorDocumentsMapToKinds(t *testing.T) {
	testCases := []struct {
		status int
		code   string
		kind   apperrors.Kind
		reason string
	}{
		{status: http.StatusForbidden, code: "messaging.list_messages.not_participant", kind: apperrors.KindForbidden, reason: "not_participant"},
		{status: http.StatusBadRequest, code: "messaging.send_message.empty_message", kind: apperrors.KindInvalidRequest, reason: "empty_message"},
		{status: http.StatusNotFound, code: "profiles.get.profile_not_found", kind: apperrors.KindNotFound, reason: "profile_not_found"},
		{status: http.StatusConflict, code: "users.sign_up.email_taken", kind: apperrors.KindConflict, reason: "email_taken"},
		{status: http.StatusBadGateway, code: "", kind: apperrors.KindUpstreamFailure, reason: "http_502"},
	}

	for _, testCase := range testCases {
		t.Run(fmt.Sprintf("status_%d", testCase.status), func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/messages/conversations/c1/messages", func(w http.ResponseWriter, r *http.Request) {
				if testCase.code == "" {
					w.WriteHeader(testCase.status)
					_, _ = w.Write([]byte("bad gateway"))
					return
				}
				writeJSON(w, testCase.status, map[string]string{"error": testCase.code, "message": "boom"})
			})
			store := &MemorySessionStore{}
			_ = store.Save(Session{AccessToken: "token-1"})
			client := newTestClient(t, mux, store)
			if _, _, err := client.Restore(); err != nil {
				t.Fatalf("unexpected restore error: %v", err)
			}

			_, err := client.LoadHistory(context.Background(), "c1")
			if apperrors.KindOf(err) != testCase.kind || apperrors.ReasonOf(err) != testCase.reason {
				t.Fatalf("expected %s/%s, got %v", testCase.kind, testCase.reason, err)
			}
		})
	}
}

func TestReadEventsParsesStream(t *testing.T) {
	body := strings.Join([]string{
		": comment",
		"event: heartbeat",
		"data: {\"timestamp\":1}",
		"",
		"event:message-inserted",
		"data:{\"id\":\"m1\",",
		"data: \"content\":\"hi\"}",
		"",
		"",
	}, "\n")

	var events []streamEvent
	if err := readEvents(strings.NewReader(body), func(event streamEvent) bool {
		events = append(events, event)
		return true
	}); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events, got %#v", events)
	}
	if events[1].name != realtime.EventMessageInserted || events[1].data != "{\"id\":\"m1\",\n\"content\":\"hi\"}" {
		t.Fatalf("unexpected event %#v", events[1])
	}
}

func TestClientDrivesTimelineFromHistoryAndStream(t *testing.T) {
	history := []messaging.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "u2", Content: "halo", CreatedAt: fixedNow},
	}
	live := messaging.Message{ID: "m2", ConversationID: "c1", SenderID: "u2", Content: "lagi apa?", CreatedAt: fixedNow.Add(time.Minute)}
	sent := messaging.Message{ID: "m3", ConversationID: "c1", SenderID: "u1", Content: "santai", CreatedAt: fixedNow.Add(2 * time.Minute)}

	mux := http.NewServeMux()
	mux.HandleFunc("/messages/conversations/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusCreated, sent)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": history})
	})
	mux.HandleFunc("/messages/conversations/c1/stream", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		payload, _ := json.Marshal(live)
		fmt.Fprintf(w, "event:%s\ndata:{\"timestamp\":1}\n\n", realtime.EventHeartbeat)
		fmt.Fprintf(w, "event:%s\ndata:%s\n\n", realtime.EventMessageInserted, payload)
		fmt.Fprintf(w, "event:%s\ndata:%s\n\n", realtime.EventMessageInserted, payload)
		flusher.Flush()
		<-r.Context().Done()
	})

	store := &MemorySessionStore{}
	_ = store.Save(Session{AccessToken: "token-1", UserID: "u1"})
	client := newTestClient(t, mux, store)
	if _, ok, err := client.Restore(); err != nil || !ok {
		t.Fatalf("expected restored session (ok=%v, err=%v)", ok, err)
	}

	view, err := timeline.New(timeline.Config{Backend: client})
	if err != nil {
		t.Fatalf("failed to construct timeline: %v", err)
	}
	t.Cleanup(view.Close)

	if err := view.Select(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected select error: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(view.Messages()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("live message never arrived, have %#v", view.Messages())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := view.Send(context.Background(), " santai "); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	messages := view.Messages()
	if len(messages) != 3 || messages[0].ID != "m1" || messages[1].ID != "m2" || messages[2].ID != "m3" {
		t.Fatalf("unexpected timeline %#v", messages)
	}
}
