// Package client talks to the SoulMatch HTTP API and feeds a timeline with history,
// sends and the live message stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/messaging"
	"go.uber.org/zap"
)

const (
	opSignIn            = "client.sign_in"
	opSignOut           = "client.sign_out"
	opOpenConversation  = "client.open_conversation"
	opListConversations = "client.list_conversations"
	opLoadHistory       = "client.load_history"
	opSendMessage       = "client.send_message"
	opSubscribe         = "client.subscribe"

	defaultRequestTimeout = 15 * time.Second
)

var (
	errMissingBaseURL = errors.New("client: base url required")
	errNotSignedIn    = errors.New("not signed in")
)

// Config wires a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Sessions   SessionStore
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Client is an authenticated API client. It is safe for concurrent use.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	sessions SessionStore
	now      func() time.Time
	logger   *zap.Logger

	mu      sync.RWMutex
	session Session
}

// New constructs a Client. Requests other than streams time out after 15s.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errMissingBaseURL
	}
	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = &MemorySessionStore{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: baseURL, http: httpClient, sessions: sessions, now: clock, logger: logger}, nil
}

// Restore hydrates the client from its session store. Expired sessions are cleared.
func (c *Client) Restore() (Session, bool, error) {
	session, ok, err := c.sessions.Load()
	if err != nil || !ok {
		return Session{}, false, err
	}
	if !session.Valid(c.now()) {
		return Session{}, false, c.sessions.Clear()
	}
	c.setSession(session)
	return session, true, nil
}

// Session returns the current session.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SignIn exchanges credentials for a session and persists it.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var response struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		User        struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	request := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, opSignIn, http.MethodPost, "/auth/signin", false, request, &response); err != nil {
		return Session{}, err
	}
	session := Session{
		AccessToken: response.AccessToken,
		UserID:      response.User.ID,
		Email:       response.User.Email,
	}
	if response.ExpiresIn > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(response.ExpiresIn) * time.Second)
	}
	c.setSession(session)
	if err := c.sessions.Save(session); err != nil {
		c.logger.Warn("session persist failed", zap.Error(err))
	}
	return session, nil
}

// SignOut revokes the session remotely and always clears it locally.
func (c *Client) SignOut(ctx context.Context) error {
	remoteErr := c.call(ctx, opSignOut, http.MethodPost, "/auth/signout", true, nil, nil)
	c.setSession(Session{})
	if err := c.sessions.Clear(); err != nil {
		return err
	}
	return remoteErr
}

// OpenConversation resolves the conversation shared with targetID.
func (c *Client) OpenConversation(ctx context.Context, targetID string) (string, error) {
	var response struct {
		ConversationID string `json:"conversation_id"`
	}
	request := map[string]string{"target_id": targetID}
	if err := c.call(ctx, opOpenConversation, http.MethodPost, "/messages/conversations", true, request, &response); err != nil {
		return "", err
	}
	return response.ConversationID, nil
}

// ListConversations fetches the caller's conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]messaging.ConversationSummary, error) {
	var response struct {
		Conversations []messaging.ConversationSummary `json:"conversations"`
	}
	if err := c.call(ctx, opListConversations, http.MethodGet, "/messages/conversations", true, nil, &response); err != nil {
		return nil, err
	}
	return response.Conversations, nil
}

// LoadHistory fetches the messages of a conversation oldest first.
func (c *Client) LoadHistory(ctx context.Context, conversationID string) ([]messaging.Message, error) {
	var response struct {
		Messages []messaging.Message `json:"messages"`
	}
	if err := c.call(ctx, opLoadHistory, http.MethodGet, conversationPath(conversationID, "messages"), true, nil, &response); err != nil {
		return nil, err
	}
	return response.Messages, nil
}

// SendMessage stores text in a conversation and returns the stored row.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (messaging.Message, error) {
	var message messaging.Message
	request := map[string]string{"content": text}
	if err := c.call(ctx, opSendMessage, http.MethodPost, conversationPath(conversationID, "messages"), true, request, &message); err != nil {
		return messaging.Message{}, err
	}
	return message, nil
}

func conversationPath(conversationID, leaf string) string {
	return "/messages/conversations/" + url.PathEscape(conversationID) + "/" + leaf
}

func (c *Client) setSession(session Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

func (c *Client) newRequest(ctx context.Context, operation, method, path string, authenticated bool, body any) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.InvalidRequest(operation, "encode_failed", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, apperrors.InvalidRequest(operation, "invalid_request", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		token := c.Session().AccessToken
		if token == "" {
			return nil, apperrors.Unauthorized(operation, "not_signed_in", errNotSignedIn)
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}
	return request, nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, authenticated bool, body, target any) error {
	requestContext, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	request, err := c.newRequest(requestContext, operation, method, path, authenticated, body)
	if err != nil {
		return err
	}
	response, err := c.http.Do(request)
	if err != nil {
		return apperrors.Upstream(operation, "request_failed", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		return decodeFailure(operation, response)
	}
	if target == nil || response.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return apperrors.Upstream(operation, "decode_failed", err)
	}
	return nil
}

// decodeFailure turns an API error document into an apperrors error of the matching kind.
func decodeFailure(operation string, response *http.Response) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	body, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		payload.Error = fmt.Sprintf("http_%d", response.StatusCode)
		payload.Message = strings.TrimSpace(string(body))
	}
	reason := payload.Error
	if index := strings.LastIndex(reason, "."); index >= 0 {
		reason = reason[index+1:]
	}
	if payload.Message == "" {
		payload.Message = http.StatusText(response.StatusCode)
	}
	return apperrors.New(kindForStatus(response.StatusCode), operation, reason, errors.New(payload.Message))
}

func kindForStatus(status int) apperrors.Kind {
	switch status {
	case http.StatusUnauthorized:
		return apperrors.KindUnauthorized
	case http.StatusForbidden:
		return apperrors.KindForbidden
	case http.StatusBadRequest:
		return apperrors.KindInvalidRequest
	case http.StatusNotFound:
		return apperrors.KindNotFound
	case http.StatusConflict:
		return apperrors.KindConflict
	default:
		return apperrors.KindUpstreamFailure
	}
}
