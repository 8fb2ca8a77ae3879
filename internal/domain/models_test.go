package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	if (Chat{}).TableName() != "chats" {
		t.Fatalf("Chat.TableName() = %q; want %q", (Chat{}).TableName(), "chats")
	}
	if (Message{}).TableName() != "messages" {
		t.Fatalf("Message.TableName() = %q; want %q", (Message{}).TableName(), "messages")
	}
	if (Idempotency{}).TableName() != "idempotency" {
		t.Fatalf("Idempotency.TableName() = %q; want %q", (Idempotency{}).TableName(), "idempotency")
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Chat{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&Chat{}, &Message{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	if !m.HasIndex(&Chat{}, "idx_chats_last_msg") {
		t.Fatalf("expected index idx_chats_last_msg on chats")
	}
	if !m.HasIndex(&Message{}, "idx_chat_msgs") {
		t.Fatalf("expected index idx_chat_msgs on messages")
	}

	// Deleting a chat removes its messages (FK cascade).
	now := time.Now().UTC()
	chat := Chat{
		ID:              "27115550199",
		CustomerName:    "27115550199",
		LastMessageText: "hi",
		LastMessageTime: now,
		Status:          StatusBot,
	}
	if err := db.Create(&chat).Error; err != nil {
		t.Fatalf("create chat: %v", err)
	}
	msg := Message{
		ID:        "11111111-1111-1111-1111-111111111111",
		ChatID:    chat.ID,
		Text:      "hi",
		Sender:    SenderUser,
		CreatedAt: now,
	}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatalf("create message: %v", err)
	}

	if err := db.Delete(&Chat{}, "id = ?", chat.ID).Error; err != nil {
		t.Fatalf("delete chat: %v", err)
	}
	var left int64
	if err := db.Model(&Message{}).Where("chat_id = ?", chat.ID).Count(&left).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if left != 0 {
		t.Fatalf("expected cascade delete of messages, %d left", left)
	}
}

func TestChat_UniquePerNumber(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Chat{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	now := time.Now().UTC()
	first := Chat{ID: "27820001111", CustomerName: "27820001111", LastMessageText: "a", LastMessageTime: now, Status: StatusBot}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("create first chat: %v", err)
	}
	dup := Chat{ID: "27820001111", CustomerName: "dup", LastMessageText: "b", LastMessageTime: now, Status: StatusBot}
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected primary-key violation for duplicate chat id")
	}
}

func TestMessage_SenderConstraint(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Chat{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	now := time.Now().UTC()
	chat := Chat{ID: "27820002222", CustomerName: "x", LastMessageText: "a", LastMessageTime: now, Status: StatusBot}
	if err := db.Create(&chat).Error; err != nil {
		t.Fatalf("create chat: %v", err)
	}
	bad := Message{ID: "22222222-2222-2222-2222-222222222222", ChatID: chat.ID, Text: "t", Sender: "alien", CreatedAt: now}
	if err := db.Create(&bad).Error; err == nil {
		t.Fatalf("expected check-constraint violation for sender %q", bad.Sender)
	}
}
