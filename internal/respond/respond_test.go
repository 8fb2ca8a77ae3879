package respond

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/voltworx/wa-chat-backend/internal/catalog"
	"github.com/voltworx/wa-chat-backend/internal/classify"
	"github.com/voltworx/wa-chat-backend/internal/domain"
)

// ----- Fake AI -----

type fakeAI struct {
	prompt string
	reply  string
	err    error
}

func (f *fakeAI) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func newResponder(ai TextGenerator) *Responder {
	return New(ai, catalog.Default())
}

// ----- Tests -----

func TestGenerate_Handoff_FixedHoldMessage(t *testing.T) {
	ai := &fakeAI{reply: "never used"}
	r := newResponder(ai)

	got, err := r.Generate(context.Background(), classify.Intent{Kind: classify.IntentHandoff}, nil, "breakdown now")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != HoldReply {
		t.Fatalf("reply = %q; want hold message", got)
	}
	if ai.prompt != "" {
		t.Fatalf("handoff must not call the AI collaborator")
	}
}

func TestGenerate_PriceQuote_NamesBatteryCode(t *testing.T) {
	r := newResponder(&fakeAI{})
	got, err := r.Generate(context.Background(),
		classify.Intent{Kind: classify.IntentPriceQuote, BatteryCode: "628"}, nil, "how much for a vw polo")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(got, "628") {
		t.Fatalf("quote %q does not name the battery code", got)
	}
	if !strings.Contains(got, "quote") {
		t.Fatalf("quote %q should offer a formal quote", got)
	}
}

func TestGenerate_Address_ContainsBothBranchNumbers(t *testing.T) {
	r := newResponder(&fakeAI{})
	got, err := r.Generate(context.Background(), classify.Intent{Kind: classify.IntentAddress}, nil, "where are you")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, phone := range []string{"011 823 4455", "011 334 9090"} {
		if !strings.Contains(got, phone) {
			t.Errorf("address reply missing branch number %q:\n%s", phone, got)
		}
	}
}

func TestGenerate_General_DelegatesVerbatim(t *testing.T) {
	ai := &fakeAI{reply: "We close at 17:00 on weekdays."}
	r := newResponder(ai)

	chat := &domain.Chat{ID: "27820001111", CustomerName: "Thabo"}
	got, err := r.Generate(context.Background(), classify.Intent{Kind: classify.IntentGeneral}, chat, "what time do you close?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != ai.reply {
		t.Fatalf("reply = %q; want AI text verbatim", got)
	}

	// The prompt carries the persona, the serialized fitment table, the
	// customer name, and the raw message.
	for _, want := range []string{"Voltworx", "Vw Polo: battery size 628", "Customer name: Thabo", "what time do you close?"} {
		if !strings.Contains(ai.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, ai.prompt)
		}
	}
}

func TestGenerate_General_OmitsDefaultedName(t *testing.T) {
	ai := &fakeAI{reply: "ok"}
	r := newResponder(ai)

	chat := &domain.Chat{ID: "27820001111", CustomerName: "27820001111"}
	if _, err := r.Generate(context.Background(), classify.Intent{Kind: classify.IntentGeneral}, chat, "hi"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(ai.prompt, "Customer name:") {
		t.Fatalf("prompt should not carry a name equal to the phone number:\n%s", ai.prompt)
	}
}

func TestGenerate_General_AIFailure(t *testing.T) {
	ai := &fakeAI{err: errors.New("quota exceeded")}
	r := newResponder(ai)

	_, err := r.Generate(context.Background(), classify.Intent{Kind: classify.IntentGeneral}, nil, "hello")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v; want ErrGeneration", err)
	}
}

func TestGenerate_General_EmptyCompletionIsError(t *testing.T) {
	r := newResponder(&fakeAI{reply: "   "})
	_, err := r.Generate(context.Background(), classify.Intent{Kind: classify.IntentGeneral}, nil, "hello")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v; want ErrGeneration", err)
	}
}

func TestGenerate_General_NoGeneratorConfigured(t *testing.T) {
	r := New(nil, catalog.Default())
	_, err := r.Generate(context.Background(), classify.Intent{Kind: classify.IntentGeneral}, nil, "hello")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v; want ErrGeneration", err)
	}
}
