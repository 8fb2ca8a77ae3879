// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chat model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a chat is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.ConversationService) which enforces business rules and
// cross-aggregate behavior.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voltworx/wa-chat-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertChat inserts a Chat row for the given customer number unless one
// already exists, then returns the current row. The insert uses ON CONFLICT
// DO NOTHING on the primary key, so two concurrent first messages from the
// same number cannot create two chats; the loser of the race simply reads
// the winner's row.
func UpsertChat(ctx context.Context, db *gorm.DB, number, text string, now time.Time) (*domain.Chat, error) {
	c := &domain.Chat{
		ID:              number,
		CustomerName:    number,
		LastMessageText: text,
		LastMessageTime: now,
		Status:          domain.StatusBot,
		CreatedAt:       now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(c).Error
	if err != nil {
		return nil, err
	}
	// Re-read: on conflict the in-memory struct does not reflect the stored
	// row (status, name, caches may have moved on since creation).
	return GetChat(ctx, db, number)
}

// GetChat fetches a single chat by its ID (the customer number). If the
// record does not exist, it returns ErrNotFound.
func GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error) {
	var c domain.Chat
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountChats returns the total number of chats.
func CountChats(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Count(&total).Error
	return total, err
}

// ListChatsPage returns a page of chats ordered by most-recent message
// descending, each carrying its single most recent message in Messages.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListChatsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Chat, error) {
	var out []domain.Chat
	q := db.WithContext(ctx).
		Order("last_message_time desc, id asc").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}

	// One window query fetches the newest message per chat on this page.
	var latest []domain.Message
	err := db.WithContext(ctx).Raw(`
		SELECT id, chat_id, text, sender, created_at FROM (
			SELECT m.*, ROW_NUMBER() OVER (
				PARTITION BY m.chat_id ORDER BY m.created_at DESC, m.id DESC
			) AS rn
			FROM messages m
			WHERE m.chat_id IN ?
		) WHERE rn = 1`, ids).
		Scan(&latest).Error
	if err != nil {
		return nil, err
	}

	byChat := make(map[string]domain.Message, len(latest))
	for _, m := range latest {
		byChat[m.ChatID] = m
	}
	for i := range out {
		if m, ok := byChat[out[i].ID]; ok {
			out[i].Messages = []domain.Message{m}
		}
	}
	return out, nil
}

// UpdateChatLastMessage refreshes the chat's last-message cache fields.
// Returns ErrNotFound when the chat does not exist.
func UpdateChatLastMessage(ctx context.Context, db *gorm.DB, id, text string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_message_text": text,
			"last_message_time": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateChatStatus sets the chat status and, when agent is non-nil, records
// the assigned staff member. Returns ErrNotFound when the chat does not
// exist. Writing the current status again is a no-op success, which keeps
// handoff idempotent at the store level.
func UpdateChatStatus(ctx context.Context, db *gorm.DB, id, status string, agent *string) error {
	updates := map[string]any{"status": status}
	if agent != nil {
		updates["assigned_agent"] = *agent
	}
	res := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either the chat is missing or nothing changed; disambiguate.
		var n int64
		if err := db.WithContext(ctx).Model(&domain.Chat{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}
