package messaging

import "time"

// Stage is the fixed relationship label shown next to every conversation.
const Stage = "pdkt"

// unknownPartnerID stands in for a partner whose participant row is missing.
const unknownPartnerID = "unknown"

// Conversation is a two-party chat. At most one exists per unordered pair of users,
// enforced on a best-effort basis by OpenConversation.
type Conversation struct {
	ID        string    `gorm:"column:id;primaryKey;size:64"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName exposes the table backing conversations.
func (Conversation) TableName() string {
	return "conversations"
}

// Participant links one user to one conversation.
type Participant struct {
	ConversationID string    `gorm:"column:conversation_id;primaryKey;size:64"`
	UserID         string    `gorm:"column:user_id;primaryKey;size:64;index"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

// TableName exposes the table backing conversation participants.
func (Participant) TableName() string {
	return "conversation_participants"
}

// Message is an append-only chat message ordered by (created_at, id).
type Message struct {
	ID             string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	ConversationID string    `gorm:"column:conversation_id;size:64;not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	SenderID       string    `gorm:"column:sender_id;size:64;not null" json:"sender_id"`
	Content        string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index:idx_messages_conversation_created,priority:2" json:"created_at"`
}

// TableName exposes the table backing messages.
func (Message) TableName() string {
	return "messages"
}

// PartnerSummary is the public part of a partner's profile shown in the conversation list.
type PartnerSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Age        *int   `json:"age"`
	City       string `json:"city"`
	Status     string `json:"status"`
	Occupation string `json:"occupation"`
	About      string `json:"about"`
	PhotoURL   string `json:"photo_url"`
}

// LastMessage is the newest message of a conversation.
type LastMessage struct {
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ID            string         `json:"id"`
	Partner       PartnerSummary `json:"partner"`
	Compatibility int            `json:"compatibility"`
	Stage         string         `json:"stage"`
	CreatedAt     *time.Time     `json:"created_at"`
	LastMessage   *LastMessage   `json:"last_message"`
}

// LastMessageOf converts a message into the summary form.
func LastMessageOf(message Message) *LastMessage {
	return &LastMessage{
		SenderID:  message.SenderID,
		Content:   message.Content,
		CreatedAt: message.CreatedAt,
	}
}
