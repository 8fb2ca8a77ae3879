// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/voltworx/wa-chat-backend/internal/domain"
)

// ChatsStats returns aggregate metadata for the dashboard chat list: the
// total number of chats and the greatest last-message timestamp among them.
// When there are no chats, count is 0 and maxLastMessage is nil.
func ChatsStats(ctx context.Context, db *gorm.DB) (count int64, maxLastMessage *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Chat{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest last_message_time (avoid MAX() -> TEXT in SQLite)
	var row struct {
		LastMessageTime time.Time
	}
	if err = q.Select("last_message_time").Order("last_message_time DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.LastMessageTime, nil
}

// MessagesStats returns aggregate metadata for messages within a given chat:
// the total number of rows and the greatest CreatedAt among them. When the
// chat has no messages, count is 0 and maxCreatedAt is nil.
func MessagesStats(ctx context.Context, db *gorm.DB, chatID string) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
