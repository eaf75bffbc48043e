package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/display"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/realtime"
	"go.uber.org/zap"
)

const (
	opServiceNew         = "messaging.service.new"
	opOpenConversation   = "messaging.open_conversation"
	opListConversations  = "messaging.list_conversations"
	opPartnerProfile     = "messaging.partner_profile"
	opListMessages       = "messaging.list_messages"
	opSendMessage        = "messaging.send_message"
	opAuthorizeStreaming = "messaging.authorize_stream"
)

var (
	errMissingStore        = errors.New("store is required")
	errMissingCaller       = errors.New("caller id is required")
	errMissingTarget       = errors.New("target user id is required")
	errSelfConversation    = errors.New("cannot open a conversation with yourself")
	errMissingConversation = errors.New("conversation id is required")
	errMissingPartner      = errors.New("partner id is required")
	errEmptyMessage        = errors.New("message text is empty")
	errNotParticipant      = errors.New("caller is not a participant of the conversation")
	errNoSharedChat        = errors.New("no shared conversation with this user")
	errPartnerNotFound     = errors.New("partner profile not found")
)

// ServiceConfig describes the dependencies of the messaging service.
type ServiceConfig struct {
	Store     Store
	Publisher realtime.Publisher
	Logger    *zap.Logger
}

// Service resolves conversations, builds conversation lists and stores messages.
type Service struct {
	store     Store
	publisher realtime.Publisher
	logger    *zap.Logger
}

// NewService constructs the messaging service. A nil Publisher disables notifications.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, apperrors.Upstream(opServiceNew, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, publisher: cfg.Publisher, logger: logger}, nil
}

// OpenConversation returns the conversation shared by caller and target, creating it with
// both participant rows when none exists. Two concurrent first calls for the same pair may
// each create a conversation; a conversation whose participant insert fails is left behind.
func (s *Service) OpenConversation(ctx context.Context, callerID, targetID string) (string, error) {
	callerID = strings.TrimSpace(callerID)
	targetID = strings.TrimSpace(targetID)
	if callerID == "" {
		return "", apperrors.Unauthorized(opOpenConversation, "missing_caller", errMissingCaller)
	}
	if targetID == "" {
		return "", apperrors.InvalidRequest(opOpenConversation, "missing_target", errMissingTarget)
	}
	if targetID == callerID {
		return "", apperrors.InvalidRequest(opOpenConversation, "self_conversation", errSelfConversation)
	}

	conversationIDs, err := s.store.ListParticipantConversationIDs(ctx, callerID)
	if err != nil {
		return "", s.upstream(opOpenConversation, "participants_lookup_failed", err, zap.String("caller_id", callerID))
	}
	if len(conversationIDs) > 0 {
		shared, found, err := s.store.FindSharedConversation(ctx, targetID, conversationIDs)
		if err != nil {
			return "", s.upstream(opOpenConversation, "shared_lookup_failed", err, zap.String("caller_id", callerID))
		}
		if found {
			return shared, nil
		}
	}

	conversationID, err := s.store.CreateConversation(ctx)
	if err != nil {
		return "", s.upstream(opOpenConversation, "conversation_insert_failed", err, zap.String("caller_id", callerID))
	}
	participants := []Participant{
		{ConversationID: conversationID, UserID: callerID},
		{ConversationID: conversationID, UserID: targetID},
	}
	if err := s.store.InsertParticipants(ctx, participants); err != nil {
		return "", s.upstream(opOpenConversation, "participants_insert_failed", err,
			zap.String("caller_id", callerID),
			zap.String("conversation_id", conversationID))
	}
	s.logger.Info("conversation created",
		zap.String("conversation_id", conversationID),
		zap.String("caller_id", callerID))
	return conversationID, nil
}

// ListConversations summarizes every conversation of caller in participant-row order.
func (s *Service) ListConversations(ctx context.Context, callerID string) ([]ConversationSummary, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, apperrors.Unauthorized(opListConversations, "missing_caller", errMissingCaller)
	}
	conversationIDs, err := s.store.ListParticipantConversationIDs(ctx, callerID)
	if err != nil {
		return nil, s.upstream(opListConversations, "participants_lookup_failed", err, zap.String("caller_id", callerID))
	}
	if len(conversationIDs) == 0 {
		return []ConversationSummary{}, nil
	}

	participants, err := s.store.ListParticipants(ctx, conversationIDs)
	if err != nil {
		return nil, s.upstream(opListConversations, "participants_fetch_failed", err, zap.String("caller_id", callerID))
	}
	partnerByConversation := make(map[string]string, len(conversationIDs))
	partnerIDs := make([]string, 0, len(conversationIDs))
	seenPartner := make(map[string]struct{}, len(conversationIDs))
	for _, participant := range participants {
		if participant.UserID == callerID {
			continue
		}
		partnerByConversation[participant.ConversationID] = participant.UserID
		if _, ok := seenPartner[participant.UserID]; !ok {
			seenPartner[participant.UserID] = struct{}{}
			partnerIDs = append(partnerIDs, participant.UserID)
		}
	}

	summaries, err := s.store.GetProfileSummaries(ctx, partnerIDs)
	if err != nil {
		return nil, s.upstream(opListConversations, "profiles_fetch_failed", err, zap.String("caller_id", callerID))
	}
	meta, err := s.store.GetConversationMeta(ctx, conversationIDs)
	if err != nil {
		return nil, s.upstream(opListConversations, "conversations_fetch_failed", err, zap.String("caller_id", callerID))
	}
	messages, err := s.store.ListMessagesNewestFirst(ctx, conversationIDs)
	if err != nil {
		return nil, s.upstream(opListConversations, "messages_fetch_failed", err, zap.String("caller_id", callerID))
	}
	lastMessages := make(map[string]*LastMessage, len(conversationIDs))
	for _, message := range messages {
		if _, ok := lastMessages[message.ConversationID]; !ok {
			lastMessages[message.ConversationID] = LastMessageOf(message)
		}
	}

	result := make([]ConversationSummary, 0, len(conversationIDs))
	for _, conversationID := range conversationIDs {
		partnerID, hasPartner := partnerByConversation[conversationID]
		seed := display.PairSeed(callerID, conversationID)
		if hasPartner {
			seed = display.PairSeed(callerID, partnerID)
		}
		partner, ok := summaries[partnerID]
		if !hasPartner || !ok {
			partner = placeholderPartner(partnerID)
		}
		summary := ConversationSummary{
			ID:            conversationID,
			Partner:       partner,
			Compatibility: display.Compatibility(seed),
			Stage:         Stage,
			LastMessage:   lastMessages[conversationID],
		}
		if conversation, ok := meta[conversationID]; ok {
			createdAt := conversation.CreatedAt
			summary.CreatedAt = &createdAt
		}
		result = append(result, summary)
	}
	return result, nil
}

// PartnerProfile returns the full profile of a user the caller shares a conversation with.
func (s *Service) PartnerProfile(ctx context.Context, callerID, partnerID string) (profiles.Profile, error) {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return profiles.Profile{}, apperrors.InvalidRequest(opPartnerProfile, "missing_partner", errMissingPartner)
	}
	conversationIDs, err := s.store.ListParticipantConversationIDs(ctx, callerID)
	if err != nil {
		return profiles.Profile{}, s.upstream(opPartnerProfile, "participants_lookup_failed", err, zap.String("caller_id", callerID))
	}
	if len(conversationIDs) == 0 {
		return profiles.Profile{}, apperrors.Forbidden(opPartnerProfile, "no_shared_conversation", errNoSharedChat)
	}
	_, found, err := s.store.FindSharedConversation(ctx, partnerID, conversationIDs)
	if err != nil {
		return profiles.Profile{}, s.upstream(opPartnerProfile, "shared_lookup_failed", err, zap.String("caller_id", callerID))
	}
	if !found {
		return profiles.Profile{}, apperrors.Forbidden(opPartnerProfile, "no_shared_conversation", errNoSharedChat)
	}
	profile, exists, err := s.store.GetProfile(ctx, partnerID)
	if err != nil {
		return profiles.Profile{}, s.upstream(opPartnerProfile, "profile_fetch_failed", err, zap.String("partner_id", partnerID))
	}
	if !exists {
		return profiles.Profile{}, apperrors.NotFound(opPartnerProfile, "profile_not_found", errPartnerNotFound)
	}
	return profile.Normalize(), nil
}

// ListMessages returns the history of a conversation, oldest first.
func (s *Service) ListMessages(ctx context.Context, callerID, conversationID string) ([]Message, error) {
	if err := s.requireParticipant(ctx, opListMessages, callerID, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessagesOldestFirst(ctx, conversationID)
	if err != nil {
		return nil, s.upstream(opListMessages, "messages_fetch_failed", err, zap.String("conversation_id", conversationID))
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// SendMessage stores trimmed text from caller and notifies the conversation's subscribers.
func (s *Service) SendMessage(ctx context.Context, callerID, conversationID, text string) (Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return Message{}, apperrors.InvalidRequest(opSendMessage, "empty_message", errEmptyMessage)
	}
	if err := s.requireParticipant(ctx, opSendMessage, callerID, conversationID); err != nil {
		return Message{}, err
	}
	message, err := s.store.InsertMessage(ctx, conversationID, callerID, content)
	if err != nil {
		return Message{}, s.upstream(opSendMessage, "message_insert_failed", err, zap.String("conversation_id", conversationID))
	}
	s.publish(message)
	return message, nil
}

// AuthorizeStream fails unless caller participates in conversationID.
func (s *Service) AuthorizeStream(ctx context.Context, callerID, conversationID string) error {
	return s.requireParticipant(ctx, opAuthorizeStreaming, callerID, conversationID)
}

func (s *Service) requireParticipant(ctx context.Context, operation, callerID, conversationID string) error {
	if strings.TrimSpace(callerID) == "" {
		return apperrors.Unauthorized(operation, "missing_caller", errMissingCaller)
	}
	if strings.TrimSpace(conversationID) == "" {
		return apperrors.InvalidRequest(operation, "missing_conversation", errMissingConversation)
	}
	participants, err := s.store.ListParticipants(ctx, []string{conversationID})
	if err != nil {
		return s.upstream(operation, "participants_fetch_failed", err, zap.String("conversation_id", conversationID))
	}
	for _, participant := range participants {
		if participant.UserID == callerID {
			return nil
		}
	}
	return apperrors.Forbidden(operation, "not_participant", errNotParticipant)
}

func (s *Service) publish(message Message) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn("message event encode failed", zap.String("message_id", message.ID), zap.Error(err))
		return
	}
	s.publisher.Publish(realtime.Event{
		Topic:     message.ConversationID,
		Type:      realtime.EventMessageInserted,
		Payload:   payload,
		Timestamp: message.CreatedAt,
	})
}

func placeholderPartner(partnerID string) PartnerSummary {
	if partnerID == "" {
		partnerID = unknownPartnerID
	}
	return PartnerSummary{ID: partnerID, Name: profiles.PlaceholderName}
}

func (s *Service) upstream(operation, reason string, err error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("messaging service error", attrs...)
	return apperrors.Upstream(operation, reason, err)
}
