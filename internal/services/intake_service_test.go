package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voltworx/wa-chat-backend/internal/catalog"
	"github.com/voltworx/wa-chat-backend/internal/classify"
	"github.com/voltworx/wa-chat-backend/internal/domain"
	"github.com/voltworx/wa-chat-backend/internal/respond"
)

type fakeAI struct {
	reply string
	err   error
	calls int
}

func (f *fakeAI) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type recordingDeliverer struct {
	to, text string
	err      error
	calls    int
}

func (d *recordingDeliverer) Deliver(ctx context.Context, to, text string) error {
	d.calls++
	d.to, d.text = to, text
	return d.err
}

func newIntake(t *testing.T, ai respond.TextGenerator, del Deliverer) *IntakeService {
	t.Helper()
	fitment := catalog.Default()
	return &IntakeService{
		Conversations: NewConversationService(newServiceDB(t)),
		Classifier:    classify.New(classify.DefaultKeywords(), fitment),
		Responder:     respond.New(ai, fitment),
		Deliverer:     del,
		Now: func() time.Time {
			return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
		},
	}
}

func TestHandleInbound_PriceQuote(t *testing.T) {
	ai := &fakeAI{reply: "should not be used"}
	del := &recordingDeliverer{}
	svc := newIntake(t, ai, del)
	ctx := context.Background()

	out, err := svc.HandleInbound(ctx, "27115550199", "How much for a VW Polo battery?")
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if !strings.Contains(out.Text, "628") {
		t.Fatalf("reply %q; want the fitment code 628", out.Text)
	}
	if ai.calls != 0 {
		t.Fatalf("AI called %d times for a price quote; want 0", ai.calls)
	}

	chat, err := svc.Conversations.GetChat(ctx, "27115550199")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.Status != domain.StatusBot {
		t.Fatalf("Status = %q; want bot", chat.Status)
	}
	if chat.LastMessageText != out.Text {
		t.Fatalf("last-message cache %q != outbound %q", chat.LastMessageText, out.Text)
	}

	msgs, total, err := svc.Conversations.ListMessagesPage(ctx, "27115550199", 1, 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if total != 2 {
		t.Fatalf("persisted %d messages; want inbound + outbound", total)
	}
	if msgs[0].Sender != domain.SenderUser || msgs[1].Sender != domain.SenderBot {
		t.Fatalf("sender order = %q, %q", msgs[0].Sender, msgs[1].Sender)
	}

	if del.calls != 1 || del.to != "27115550199" || del.text != out.Text {
		t.Fatalf("delivery = %+v; want the reply sent to the customer", del)
	}
}

func TestHandleInbound_Handoff_MarksChatStaff(t *testing.T) {
	ai := &fakeAI{reply: "should not be used"}
	svc := newIntake(t, ai, &recordingDeliverer{})
	ctx := context.Background()

	out, err := svc.HandleInbound(ctx, "27115550199", "I've broken down, I need a call-out")
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if out.Text != respond.HoldReply {
		t.Fatalf("reply = %q; want the hold message", out.Text)
	}

	chat, _ := svc.Conversations.GetChat(ctx, "27115550199")
	if chat.Status != domain.StatusStaff {
		t.Fatalf("Status = %q; want staff after handoff", chat.Status)
	}
}

func TestHandleInbound_GeneralDelegatesToAI(t *testing.T) {
	ai := &fakeAI{reply: "We stock maintenance-free batteries."}
	svc := newIntake(t, ai, &recordingDeliverer{})

	out, err := svc.HandleInbound(context.Background(), "27115550199", "do you fit batteries on site?")
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if out.Text != ai.reply {
		t.Fatalf("reply = %q; want the AI completion verbatim", out.Text)
	}
	if ai.calls != 1 {
		t.Fatalf("AI calls = %d; want 1", ai.calls)
	}
}

func TestHandleInbound_GenerationFailure_KeepsInbound(t *testing.T) {
	ai := &fakeAI{err: errors.New("upstream 503")}
	del := &recordingDeliverer{}
	svc := newIntake(t, ai, del)
	ctx := context.Background()

	_, err := svc.HandleInbound(ctx, "27115550199", "tell me about your warranties")
	if !errors.Is(err, respond.ErrGeneration) {
		t.Fatalf("err = %v; want ErrGeneration", err)
	}

	// The inbound message survives the failed generation.
	msgs, total, lerr := svc.Conversations.ListMessagesPage(ctx, "27115550199", 1, 10)
	if lerr != nil {
		t.Fatalf("list messages: %v", lerr)
	}
	if total != 1 || msgs[0].Sender != domain.SenderUser {
		t.Fatalf("messages = %+v (total %d); want only the inbound user message", msgs, total)
	}
	if del.calls != 0 {
		t.Fatalf("delivery attempted after a failed generation")
	}
}

func TestHandleInbound_DeliveryFailureDoesNotFailPipeline(t *testing.T) {
	ai := &fakeAI{reply: "ok"}
	del := &recordingDeliverer{err: errors.New("channel down")}
	svc := newIntake(t, ai, del)

	out, err := svc.HandleInbound(context.Background(), "27115550199", "hello there")
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if out == nil || del.calls != 1 {
		t.Fatalf("out=%v deliveries=%d; want a persisted reply and one attempt", out, del.calls)
	}
}

func TestHandleInbound_ReplyTimeoutBoundsGeneration(t *testing.T) {
	slow := &ctxAwareAI{}
	svc := newIntake(t, slow, &recordingDeliverer{})
	svc.ReplyTimeout = time.Millisecond

	_, err := svc.HandleInbound(context.Background(), "27115550199", "anything at all")
	if !errors.Is(err, respond.ErrGeneration) {
		t.Fatalf("err = %v; want ErrGeneration from the expired context", err)
	}
}

// ctxAwareAI blocks until its context expires.
type ctxAwareAI struct{}

func (ctxAwareAI) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
