// Package domain defines the persistence models for chats and messages.
// These types are mapped with GORM and form the core data layer of the
// WhatsApp chat-management backend.
package domain

import (
	"time"
)

// Chat status values. A chat starts in StatusBot, moves to StatusStaff on
// handoff (or when a staff member replies from the dashboard), and only an
// explicit resolve action returns it out of staff ownership.
const (
	StatusBot      = "bot"
	StatusStaff    = "staff"
	StatusResolved = "resolved"
)

// Message sender roles.
const (
	SenderUser  = "user"
	SenderBot   = "bot"
	SenderStaff = "staff"
)

// Chat represents one customer conversation thread. The primary key is the
// customer's WhatsApp number, which guarantees exactly one chat per customer
// at the schema level.
//
// Fields:
//   - ID: customer phone number in international format (e.g. "27115550199").
//   - CustomerName: display name; defaults to the phone number on creation.
//   - LastMessageText / LastMessageTime: cache of the most recent message,
//     maintained on every inbound and outbound append.
//   - Status: "bot" | "staff" | "resolved" (enforced by DB constraint).
//   - AssignedAgent: identifier of the staff member handling the chat, when
//     any. Nil while the bot owns the conversation.
type Chat struct {
	ID              string    `json:"id"                gorm:"type:varchar(32);primaryKey"`
	CustomerName    string    `json:"customer_name"     gorm:"type:varchar(255);not null"`
	LastMessageText string    `json:"last_message_text" gorm:"type:text;not null"`
	LastMessageTime time.Time `json:"last_message_time" gorm:"not null;index:idx_chats_last_msg"`
	Status          string    `json:"status"            gorm:"type:varchar(16);not null;default:'bot';check:status IN ('bot','staff','resolved')"`
	AssignedAgent   *string   `json:"assigned_agent,omitempty" gorm:"type:varchar(64)"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Messages is populated only by queries that explicitly preload it
	// (the dashboard chat list carries the single most recent message).
	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:ChatID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// Message represents a single utterance within a chat, authored by the
// customer ("user"), the bot, or a staff member. Messages are immutable once
// created and are cascade-deleted with their chat.
//
// Ordering is deterministic: CreatedAt ascending with ID as tie-break. IDs
// are time-ordered UUIDs (v7), so the tie-break reflects insertion order.
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    string    `json:"chat_id"    gorm:"type:varchar(32);not null;index:idx_chat_msgs,priority:1"`
	Text      string    `json:"text"       gorm:"type:text;not null"`
	Sender    string    `json:"sender"     gorm:"type:varchar(16);not null;check:sender IN ('user','bot','staff')"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`

	// Chat is the parent conversation.
	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
