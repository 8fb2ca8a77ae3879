package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/voltworx/wa-chat-backend/internal/domain"
	"github.com/voltworx/wa-chat-backend/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("handlers_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.Chat{}, &domain.Message{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeIntake records HandleInbound calls and returns canned results.
type fakeIntake struct {
	from, text string
	calls      int
	msg        *domain.Message
	err        error
}

func (f *fakeIntake) HandleInbound(ctx context.Context, from, text string) (*domain.Message, error) {
	f.calls++
	f.from, f.text = from, text
	return f.msg, f.err
}

func newTestRouter(t *testing.T, db *gorm.DB, intake IntakeHandler) (*gin.Engine, *Handlers) {
	t.Helper()

	svc := services.NewConversationService(db)
	h := New(svc, svc, intake, "verify-me")

	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.ReceiveWebhook)
	r.GET("/api/v1/chats", h.ListChats)
	r.GET("/api/v1/chats/:id/messages", h.ListMessages)
	r.POST("/api/v1/messages", h.SendMessage)
	r.PUT("/api/v1/chats/:id/resolve", h.ResolveChat)
	return r, h
}

func seedChat(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	svc := services.NewConversationService(db)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	if _, err := svc.GetOrCreateChat(ctx, id, "hi", at); err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	if _, err := svc.AppendMessage(ctx, id, "hi", domain.SenderUser, at); err != nil {
		t.Fatalf("seed message: %v", err)
	}
}

func doJSON(r *gin.Engine, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerifyWebhook(t *testing.T) {
	r, _ := newTestRouter(t, newHandlerDB(t), &fakeIntake{})

	w := doJSON(r, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "12345" {
		t.Fatalf("status=%d body=%q; want 200 with the echoed challenge", w.Code, w.Body.String())
	}

	for name, q := range map[string]string{
		"wrong token": "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1",
		"wrong mode":  "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=1",
		"missing all": "",
		"empty token": "hub.mode=subscribe&hub.verify_token=&hub.challenge=1",
	} {
		t.Run(name, func(t *testing.T) {
			w := doJSON(r, http.MethodGet, "/webhook?"+q, "", nil)
			if w.Code != http.StatusForbidden {
				t.Fatalf("status = %d; want 403", w.Code)
			}
		})
	}
}

func TestReceiveWebhook_RunsIntake(t *testing.T) {
	fi := &fakeIntake{msg: &domain.Message{ID: "m1"}}
	r, _ := newTestRouter(t, newHandlerDB(t), fi)

	payload := `{"entry":[{"changes":[{"value":{"messages":[{"from":"27115550199","text":{"body":"how much for a vw polo"}}]}}]}]}`
	w := doJSON(r, http.MethodPost, "/webhook", payload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200, body %s", w.Code, w.Body.String())
	}
	if fi.calls != 1 || fi.from != "27115550199" || fi.text != "how much for a vw polo" {
		t.Fatalf("intake = %+v; want one call with the message fields", fi)
	}
	if !strings.Contains(w.Body.String(), "processed") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestReceiveWebhook_MalformedIsAcknowledged(t *testing.T) {
	fi := &fakeIntake{}
	db := newHandlerDB(t)
	r, _ := newTestRouter(t, db, fi)

	cases := []string{
		`not json at all`,
		`{}`,
		`{"entry":[]}`,
		`{"entry":[{"changes":[]}]}`,
		`{"entry":[{"changes":[{"value":{"messages":[]}}]}]}`,
		`{"entry":[{"changes":[{"value":{"messages":[{"from":"","text":{"body":"hi"}}]}}]}]}`,
		`{"entry":[{"changes":[{"value":{"messages":[{"from":"271","text":{"body":"  "}}]}}]}]}`,
	}
	for _, body := range cases {
		w := doJSON(r, http.MethodPost, "/webhook", body, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("payload %q: status = %d; want 200", body, w.Code)
		}
	}
	if fi.calls != 0 {
		t.Fatalf("intake ran %d times on junk payloads", fi.calls)
	}

	// Nothing was stored. The conversation store stays empty.
	var n int64
	if err := db.Model(&domain.Chat{}).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("chats = %d (err %v); want 0", n, err)
	}
}

func TestReceiveWebhook_PipelineFailure(t *testing.T) {
	fi := &fakeIntake{err: services.ErrStorage}
	r, _ := newTestRouter(t, newHandlerDB(t), fi)

	payload := `{"entry":[{"changes":[{"value":{"messages":[{"from":"271","text":{"body":"hi"}}]}}]}]}`
	w := doJSON(r, http.MethodPost, "/webhook", payload, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), ErrCodeIntakeFailed) {
		t.Fatalf("body = %s; want %s code", w.Body.String(), ErrCodeIntakeFailed)
	}
}

func TestListChats_PageAndETag(t *testing.T) {
	db := newHandlerDB(t)
	seedChat(t, db, "27110000001")
	seedChat(t, db, "27110000002")
	r, _ := newTestRouter(t, db, &fakeIntake{})

	w := doJSON(r, http.MethodGet, "/api/v1/chats?page=1&page_size=20", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	if !strings.Contains(w.Body.String(), `"total":2`) {
		t.Fatalf("body = %s; want total 2", w.Body.String())
	}

	w2 := doJSON(r, http.MethodGet, "/api/v1/chats", "", map[string]string{"If-None-Match": etag})
	if w2.Code != http.StatusNotModified {
		t.Fatalf("status = %d; want 304 on matching ETag", w2.Code)
	}
}

func TestResolveChat(t *testing.T) {
	db := newHandlerDB(t)
	seedChat(t, db, "27115550199")
	r, _ := newTestRouter(t, db, &fakeIntake{})

	svc := services.NewConversationService(db)
	if err := svc.ApplyHandoff(context.Background(), "27115550199"); err != nil {
		t.Fatalf("handoff: %v", err)
	}

	w := doJSON(r, http.MethodPut, "/api/v1/chats/27115550199/resolve", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d; want 204", w.Code)
	}
	chat, err := svc.GetChat(context.Background(), "27115550199")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if chat.Status != domain.StatusResolved {
		t.Fatalf("Status = %q; want resolved", chat.Status)
	}

	w2 := doJSON(r, http.MethodPut, "/api/v1/chats/missing/resolve", "", nil)
	if w2.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", w2.Code)
	}
}

func TestListMessages(t *testing.T) {
	db := newHandlerDB(t)
	seedChat(t, db, "27115550199")
	r, _ := newTestRouter(t, db, &fakeIntake{})

	w := doJSON(r, http.MethodGet, "/api/v1/chats/27115550199/messages", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("ETag") == "" {
		t.Fatalf("missing ETag")
	}
	if !strings.Contains(w.Body.String(), `"total":1`) {
		t.Fatalf("body = %s", w.Body.String())
	}

	w2 := doJSON(r, http.MethodGet, "/api/v1/chats/missing/messages", "", nil)
	if w2.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404 for unknown chat", w2.Code)
	}
}

func TestSendMessage(t *testing.T) {
	db := newHandlerDB(t)
	seedChat(t, db, "27115550199")
	r, _ := newTestRouter(t, db, &fakeIntake{})

	body := `{"chatId":"27115550199","text":"We have stock, collect today."}`
	w := doJSON(r, http.MethodPost, "/api/v1/messages", body, map[string]string{"X-Agent-ID": "agent-7"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	svc := services.NewConversationService(db)
	chat, err := svc.GetChat(context.Background(), "27115550199")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.Status != domain.StatusStaff {
		t.Fatalf("Status = %q; want staff after a dashboard send", chat.Status)
	}
	if chat.AssignedAgent == nil || *chat.AssignedAgent != "agent-7" {
		t.Fatalf("AssignedAgent = %v; want agent-7", chat.AssignedAgent)
	}
	if chat.LastMessageText != "We have stock, collect today." {
		t.Fatalf("LastMessageText = %q", chat.LastMessageText)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	db := newHandlerDB(t)
	seedChat(t, db, "27115550199")
	r, _ := newTestRouter(t, db, &fakeIntake{})

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing chat", `{"chatId":"missing","text":"hi"}`, http.StatusNotFound},
		{"no text", `{"chatId":"27115550199","text":"   "}`, http.StatusBadRequest},
		{"no chatId", `{"text":"hi"}`, http.StatusBadRequest},
		{"bad sender", `{"chatId":"27115550199","text":"hi","sender":"user"}`, http.StatusBadRequest},
		{"not json", `nope`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/api/v1/messages", tc.body, nil)
			if w.Code != tc.want {
				t.Fatalf("status = %d; want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestSendMessage_IdempotencyReplay(t *testing.T) {
	db := newHandlerDB(t)
	seedChat(t, db, "27115550199")
	r, _ := newTestRouter(t, db, &fakeIntake{})

	hdr := map[string]string{
		"X-Agent-ID":      "agent-7",
		"Idempotency-Key": "7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab",
	}
	body := `{"chatId":"27115550199","text":"only once please"}`

	w1 := doJSON(r, http.MethodPost, "/api/v1/messages", body, hdr)
	if w1.Code != http.StatusOK {
		t.Fatalf("first send: %d (%s)", w1.Code, w1.Body.String())
	}
	w2 := doJSON(r, http.MethodPost, "/api/v1/messages", body, hdr)
	if w2.Code != http.StatusOK {
		t.Fatalf("replay send: %d", w2.Code)
	}
	if w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay not flagged")
	}
	if w1.Body.String() != w2.Body.String() {
		t.Fatalf("replay body differs:\n%s\n%s", w1.Body.String(), w2.Body.String())
	}

	var n int64
	if err := db.Model(&domain.Message{}).Where("sender = ?", domain.SenderStaff).Count(&n).Error; err != nil || n != 1 {
		t.Fatalf("staff messages = %d (err %v); want 1", n, err)
	}
}
