package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
)

// memoryStore is an in-memory Store that counts calls and can inject failures.
type memoryStore struct {
	conversations   []Conversation
	participants    []Participant
	messages        []Message
	profiles        map[string]profiles.Profile
	nextID          int
	now             time.Time
	failParticipant error
	failList        error
	insertCalls     int
	createCalls     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		profiles: make(map[string]profiles.Profile),
		now:      time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (m *memoryStore) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func (m *memoryStore) ListParticipantConversationIDs(_ context.Context, userID string) ([]string, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	var ids []string
	for _, participant := range m.participants {
		if participant.UserID == userID {
			ids = append(ids, participant.ConversationID)
		}
	}
	return ids, nil
}

func (m *memoryStore) FindSharedConversation(_ context.Context, userID string, conversationIDs []string) (string, bool, error) {
	wanted := make(map[string]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		wanted[id] = struct{}{}
	}
	for _, participant := range m.participants {
		if participant.UserID != userID {
			continue
		}
		if _, ok := wanted[participant.ConversationID]; ok {
			return participant.ConversationID, true, nil
		}
	}
	return "", false, nil
}

func (m *memoryStore) ListParticipants(_ context.Context, conversationIDs []string) ([]Participant, error) {
	wanted := make(map[string]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		wanted[id] = struct{}{}
	}
	var rows []Participant
	for _, participant := range m.participants {
		if _, ok := wanted[participant.ConversationID]; ok {
			rows = append(rows, participant)
		}
	}
	return rows, nil
}

func (m *memoryStore) GetProfileSummaries(_ context.Context, userIDs []string) (map[string]PartnerSummary, error) {
	summaries := make(map[string]PartnerSummary)
	for _, id := range userIDs {
		if profile, ok := m.profiles[id]; ok {
			summaries[id] = PartnerSummary{ID: id, Name: profile.Name, City: profile.City, PhotoURL: profile.MainPhoto}
		}
	}
	return summaries, nil
}

func (m *memoryStore) GetProfile(_ context.Context, userID string) (profiles.Profile, bool, error) {
	profile, ok := m.profiles[userID]
	return profile, ok, nil
}

func (m *memoryStore) GetConversationMeta(_ context.Context, conversationIDs []string) (map[string]Conversation, error) {
	meta := make(map[string]Conversation)
	for _, id := range conversationIDs {
		for _, conversation := range m.conversations {
			if conversation.ID == id {
				meta[id] = conversation
			}
		}
	}
	return meta, nil
}

func (m *memoryStore) ListMessagesNewestFirst(_ context.Context, conversationIDs []string) ([]Message, error) {
	wanted := make(map[string]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		wanted[id] = struct{}{}
	}
	var rows []Message
	for _, message := range m.messages {
		if _, ok := wanted[message.ConversationID]; ok {
			rows = append(rows, message)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

func (m *memoryStore) ListMessagesOldestFirst(_ context.Context, conversationID string) ([]Message, error) {
	var rows []Message
	for _, message := range m.messages {
		if message.ConversationID == conversationID {
			rows = append(rows, message)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	return rows, nil
}

func (m *memoryStore) CreateConversation(_ context.Context) (string, error) {
	m.createCalls++
	m.nextID++
	id := fmt.Sprintf("c%d", m.nextID)
	m.conversations = append(m.conversations, Conversation{ID: id, CreatedAt: m.tick()})
	return id, nil
}

func (m *memoryStore) InsertParticipants(_ context.Context, participants []Participant) error {
	if m.failParticipant != nil {
		return m.failParticipant
	}
	m.participants = append(m.participants, participants...)
	return nil
}

func (m *memoryStore) InsertMessage(_ context.Context, conversationID, senderID, content string) (Message, error) {
	m.insertCalls++
	m.nextID++
	message := Message{
		ID:             fmt.Sprintf("m%d", m.nextID),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      m.tick(),
	}
	m.messages = append(m.messages, message)
	return message, nil
}

var errStoreOffline = errors.New("store offline")
