package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/ids"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"gorm.io/gorm"
)

// Store is the persistence collaborator of the messaging core.
type Store interface {
	ListParticipantConversationIDs(ctx context.Context, userID string) ([]string, error)
	FindSharedConversation(ctx context.Context, userID string, conversationIDs []string) (string, bool, error)
	ListParticipants(ctx context.Context, conversationIDs []string) ([]Participant, error)
	GetProfileSummaries(ctx context.Context, userIDs []string) (map[string]PartnerSummary, error)
	GetProfile(ctx context.Context, userID string) (profiles.Profile, bool, error)
	GetConversationMeta(ctx context.Context, conversationIDs []string) (map[string]Conversation, error)
	ListMessagesNewestFirst(ctx context.Context, conversationIDs []string) ([]Message, error)
	ListMessagesOldestFirst(ctx context.Context, conversationID string) ([]Message, error)
	CreateConversation(ctx context.Context) (string, error)
	InsertParticipants(ctx context.Context, participants []Participant) error
	InsertMessage(ctx context.Context, conversationID, senderID, content string) (Message, error)
}

var errMissingStoreDatabase = errors.New("messaging store: database handle is required")

// GormStoreConfig configures the relational store.
type GormStoreConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
}

// GormStore implements Store over gorm.
type GormStore struct {
	db    *gorm.DB
	ids   ids.Provider
	clock func() time.Time
}

// NewGormStore constructs a GormStore.
func NewGormStore(cfg GormStoreConfig) (*GormStore, error) {
	if cfg.Database == nil {
		return nil, errMissingStoreDatabase
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &GormStore{db: cfg.Database, ids: idProvider, clock: clock}, nil
}

func (s *GormStore) ListParticipantConversationIDs(ctx context.Context, userID string) ([]string, error) {
	var conversationIDs []string
	err := s.db.WithContext(ctx).
		Model(&Participant{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("conversation_id ASC").
		Pluck("conversation_id", &conversationIDs).Error
	return conversationIDs, err
}

func (s *GormStore) FindSharedConversation(ctx context.Context, userID string, conversationIDs []string) (string, bool, error) {
	if len(conversationIDs) == 0 {
		return "", false, nil
	}
	var row Participant
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id IN ?", userID, conversationIDs).
		Limit(1).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.ConversationID, true, nil
}

func (s *GormStore) ListParticipants(ctx context.Context, conversationIDs []string) ([]Participant, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	var rows []Participant
	err := s.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIDs).
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) GetProfileSummaries(ctx context.Context, userIDs []string) (map[string]PartnerSummary, error) {
	summaries := make(map[string]PartnerSummary, len(userIDs))
	if len(userIDs) == 0 {
		return summaries, nil
	}
	var rows []profiles.Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		summaries[row.ID] = PartnerSummary{
			ID:         row.ID,
			Name:       row.Name,
			Age:        row.Age,
			City:       row.City,
			Status:     row.Status,
			Occupation: row.Occupation,
			About:      row.About,
			PhotoURL:   row.MainPhoto,
		}
	}
	return summaries, nil
}

func (s *GormStore) GetProfile(ctx context.Context, userID string) (profiles.Profile, bool, error) {
	var row profiles.Profile
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return profiles.Profile{}, false, nil
	}
	if err != nil {
		return profiles.Profile{}, false, err
	}
	return row.Normalize(), true, nil
}

func (s *GormStore) GetConversationMeta(ctx context.Context, conversationIDs []string) (map[string]Conversation, error) {
	meta := make(map[string]Conversation, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return meta, nil
	}
	var rows []Conversation
	if err := s.db.WithContext(ctx).Where("id IN ?", conversationIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		meta[row.ID] = row
	}
	return meta, nil
}

func (s *GormStore) ListMessagesNewestFirst(ctx context.Context, conversationIDs []string) ([]Message, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	var rows []Message
	err := s.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIDs).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) ListMessagesOldestFirst(ctx context.Context, conversationID string) ([]Message, error) {
	var rows []Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) CreateConversation(ctx context.Context) (string, error) {
	conversationID, err := s.ids.NewID()
	if err != nil {
		return "", err
	}
	conversation := Conversation{ID: conversationID, CreatedAt: s.clock().UTC()}
	if err := s.db.WithContext(ctx).Create(&conversation).Error; err != nil {
		return "", err
	}
	return conversationID, nil
}

func (s *GormStore) InsertParticipants(ctx context.Context, participants []Participant) error {
	if len(participants) == 0 {
		return nil
	}
	now := s.clock().UTC()
	rows := make([]Participant, len(participants))
	for index, participant := range participants {
		if participant.CreatedAt.IsZero() {
			participant.CreatedAt = now
		}
		rows[index] = participant
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

func (s *GormStore) InsertMessage(ctx context.Context, conversationID, senderID, content string) (Message, error) {
	messageID, err := s.ids.NewID()
	if err != nil {
		return Message{}, err
	}
	message := Message{
		ID:             messageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return Message{}, err
	}
	return message, nil
}
