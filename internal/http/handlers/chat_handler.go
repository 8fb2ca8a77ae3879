// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat resources:
//   - GET /chats                (list, paginated, ETag support)
//   - PUT /chats/{id}/resolve   (close a conversation back to bot ownership)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/voltworx/wa-chat-backend/internal/domain"
	"github.com/voltworx/wa-chat-backend/internal/repo"
	"github.com/voltworx/wa-chat-backend/internal/services"
	"github.com/voltworx/wa-chat-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatService defines chat lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// ListChatsPage returns a page of chats ordered by recency and the total count.
	ListChatsPage(ctx context.Context, page, pageSize int) ([]domain.Chat, int64, error)
	// Resolve closes the chat and returns ownership to the bot.
	Resolve(ctx context.Context, chatID string) error
}

// MessageService defines message retrieval and dashboard-send operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageService interface {
	// AppendMessage persists one message in a chat and refreshes the chat's
	// last-message cache.
	AppendMessage(ctx context.Context, chatID, text, sender string, now time.Time) (*domain.Message, error)
	// AssignStaff marks the chat staff-owned and records the responding agent.
	AssignStaff(ctx context.Context, chatID, agentID string) error
	// ListMessagesPage returns a page of messages within a chat and the total count.
	ListMessagesPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int64, error)
}

// IntakeHandler runs the inbound pipeline for one customer message.
type IntakeHandler interface {
	HandleInbound(ctx context.Context, from, text string) (*domain.Message, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for the webhook and the dashboard API.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	chatSvc ChatService
	msgSvc  MessageService
	intake  IntakeHandler

	// VerifyToken authenticates webhook subscription handshakes.
	VerifyToken string
	// IdemTTL bounds how long a recorded Idempotency-Key result is replayed.
	IdemTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(chatSvc ChatService, msgSvc MessageService, intake IntakeHandler, verifyToken string) *Handlers {
	return &Handlers{
		chatSvc:     chatSvc,
		msgSvc:      msgSvc,
		intake:      intake,
		VerifyToken: verifyToken,
		IdemTTL:     24 * time.Hour,
	}
}

// agentID extracts the dashboard agent id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-Agent-ID" header (tests use it),
// and finally to "dashboard". It never touches c.Request if it's nil.
func agentID(c *gin.Context) string {
	if v, ok := c.Get("agentID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Agent-ID")); h != "" {
			return h
		}
	}
	return "dashboard"
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListChatsResponse wraps a page of chats and pagination information.
type ListChatsResponse struct {
	Chats      []domain.Chat `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// ListChats godoc
// @ID          listChats
// @Summary     List chats (paginated)
// @Description Returns a page of chats ordered by most recent activity, each with its latest message. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chats
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListChatsResponse
// @Header      200  {string} ETag           "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.chatSvc.(*services.ConversationService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.ChatsStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"chats:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch page.
	items, total, err := h.chatSvc.ListChatsPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListChatsResponse{
		Chats: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// ResolveChat godoc
// @ID          resolveChat
// @Summary     Resolve a chat
// @Description Marks the conversation resolved; the bot answers the customer's next message again.
// @Tags        Chats
// @Produce     json
//
// @Param       id  path  string  true  "Chat ID (customer phone number)"  example(27115550199)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Chat not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats/{id}/resolve [put]
func (h *Handlers) ResolveChat(c *gin.Context) {
	chatID := strings.TrimSpace(c.Param("id"))
	if chatID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id required")
		return
	}

	if err := h.chatSvc.Resolve(c.Request.Context(), chatID); err != nil {
		switch {
		case err == services.ErrChatNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeResolveFailed, err.Error())
		}
		return
	}

	noContent(c)
}
