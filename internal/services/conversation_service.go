// Package services – ConversationService
//
// This file implements the ConversationService, which owns conversation
// state: chat records keyed by customer number, their message history, and
// the bot/staff/resolved lifecycle. It is the sole writer to the store; all
// mutation funnels through here so conflicting writes to the same chat are
// serialized by the store's own constraints and transactions rather than by
// application-level locking.
//
// Service-level errors (e.g., ErrChatNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voltworx/wa-chat-backend/internal/domain"
	"github.com/voltworx/wa-chat-backend/internal/repo"
)

// ConversationService provides chat-level operations: lookup-or-create,
// message append with last-message cache maintenance, handoff, and resolve.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db}
}

// GetOrCreateChat returns the chat for the given customer number, creating it
// with status "bot" and the last-message cache seeded from text/now when no
// chat exists yet. Creation is an atomic upsert on the number, so concurrent
// first messages cannot produce duplicate chats.
func (s *ConversationService) GetOrCreateChat(ctx context.Context, number, text string, now time.Time) (*domain.Chat, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "GetOrCreateChat",
		trace.WithAttributes(attribute.String("chat.id", number)),
	)
	defer span.End()

	chat, err := repo.UpsertChat(ctx, s.DB, number, text, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return chat, nil
}

// AppendMessage appends an immutable message to the chat and refreshes the
// chat's last-message cache in the same transaction. The sender must be one
// of the domain sender roles.
func (s *ConversationService) AppendMessage(ctx context.Context, chatID, text, sender string, now time.Time) (*domain.Message, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "AppendMessage",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("message.sender", sender),
		),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	switch sender {
	case domain.SenderUser, domain.SenderBot, domain.SenderStaff:
	default:
		return nil, ErrInvalidSender
	}

	var msg *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(tx, chatID, text, sender, now)
		if err != nil {
			return err
		}
		msg = m
		return repo.UpdateChatLastMessage(ctx, tx, chatID, text, now.UTC())
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return msg, nil
}

// ApplyHandoff moves the chat to staff ownership. Re-applying to a chat that
// is already staff-owned is a no-op success.
func (s *ConversationService) ApplyHandoff(ctx context.Context, chatID string) error {
	return s.setStatus(ctx, chatID, domain.StatusStaff, nil)
}

// AssignStaff marks the chat staff-owned and records the handling agent.
// Used when a staff member replies from the dashboard.
func (s *ConversationService) AssignStaff(ctx context.Context, chatID, agentID string) error {
	agent := strings.TrimSpace(agentID)
	if agent == "" {
		return s.setStatus(ctx, chatID, domain.StatusStaff, nil)
	}
	return s.setStatus(ctx, chatID, domain.StatusStaff, &agent)
}

// Resolve closes out a conversation. This is the only path that moves a chat
// out of staff ownership; the intake pipeline never does.
func (s *ConversationService) Resolve(ctx context.Context, chatID string) error {
	return s.setStatus(ctx, chatID, domain.StatusResolved, nil)
}

func (s *ConversationService) setStatus(ctx context.Context, chatID, status string, agent *string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "setStatus",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("chat.status", status),
		),
	)
	defer span.End()

	err := repo.UpdateChatStatus(ctx, s.DB, chatID, status, agent)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// GetChat fetches a chat by its customer number.
func (s *ConversationService) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	chat, err := repo.GetChat(ctx, s.DB, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return chat, nil
}

// ListChatsPage returns a page of chats ordered by most-recent message
// descending, each with its latest message, plus the total count.
func (s *ConversationService) ListChatsPage(ctx context.Context, page, pageSize int) ([]domain.Chat, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountChats(ctx, s.DB)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if total == 0 {
		return []domain.Chat{}, 0, nil
	}

	items, err := repo.ListChatsPage(ctx, s.DB, offset, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return items, total, nil
}

// ListMessagesPage returns paginated messages for a chat in ascending
// timestamp order, plus the total count.
func (s *ConversationService) ListMessagesPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	// Ensure the chat exists.
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), chatID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), chatID, offset, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return items, total, nil
}
