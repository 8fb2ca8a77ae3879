// Package respond turns a classified intent into the reply text sent back to
// the customer. Three intents are answered from fixed copy; the general
// fallback delegates to an external AI text-completion collaborator.
//
// The generator has no side effects and writes nothing to storage. The
// handoff status change implied by IntentHandoff is applied by the intake
// pipeline, which owns conversation state.
package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voltworx/wa-chat-backend/internal/catalog"
	"github.com/voltworx/wa-chat-backend/internal/classify"
	"github.com/voltworx/wa-chat-backend/internal/domain"
)

// ErrGeneration indicates that the AI collaborator was unreachable or
// returned an error. Only the general intent can produce it.
var ErrGeneration = errors.New("response generation failed")

// TextGenerator is the external AI text-completion collaborator. It receives
// one fully built prompt and returns the completion verbatim. Implementations
// must honor ctx for timeout and cancellation; the generator applies no retry
// of its own.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Fixed reply copy.
const (
	// HoldReply is sent when a chat is handed to a staff member.
	HoldReply = "Please hold while I connect you to a staff member. Someone will be with you shortly."

	// AddressReply lists both branches with their phone numbers.
	AddressReply = "You can find us at either branch:\n" +
		"Boksburg: 45 Voortrekker Rd, Boksburg — 011 823 4455\n" +
		"Johannesburg CBD: 12 Loop St, Johannesburg — 011 334 9090\n" +
		"Open Mon–Fri 08:00–17:00, Sat 08:00–13:00."
)

// persona is the fixed store instruction block for AI-generated answers.
const persona = `You are the WhatsApp assistant for Voltworx Batteries, a vehicle
battery retailer with branches in Boksburg and Johannesburg CBD. Answer the
customer's message helpfully and briefly. Only recommend battery sizes from
the fitment list below; if the list does not cover the customer's vehicle, ask
which vehicle they drive and offer to check with a staff member. Never invent
prices.`

// Responder generates reply text for classified intents.
type Responder struct {
	// AI answers the general fallback. Required; the other intents never
	// touch it.
	AI TextGenerator
	// Fitment is serialized into the AI prompt so the model can resolve
	// vehicles the keyword path did not.
	Fitment *catalog.Table
}

// New constructs a Responder.
func New(ai TextGenerator, fitment *catalog.Table) *Responder {
	return &Responder{AI: ai, Fitment: fitment}
}

// Generate produces the reply for the given intent. Only the general path can
// fail, and then always with an error wrapping ErrGeneration.
func (r *Responder) Generate(ctx context.Context, intent classify.Intent, chat *domain.Chat, text string) (string, error) {
	switch intent.Kind {
	case classify.IntentHandoff:
		return HoldReply, nil
	case classify.IntentPriceQuote:
		return priceQuoteReply(intent.BatteryCode), nil
	case classify.IntentAddress:
		return AddressReply, nil
	default:
		return r.generateAI(ctx, chat, text)
	}
}

// priceQuoteReply names the recommended battery size and the option range.
func priceQuoteReply(code string) string {
	return fmt.Sprintf("For your vehicle we recommend our size %s battery. "+
		"We stock standard (12-month warranty) through premium (24-month warranty) options in that size. "+
		"Would you like the product list, or a formal quote?", code)
}

// generateAI builds the persona prompt and delegates to the AI collaborator.
func (r *Responder) generateAI(ctx context.Context, chat *domain.Chat, text string) (string, error) {
	if r.AI == nil {
		return "", fmt.Errorf("%w: no text generator configured", ErrGeneration)
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nFitment list:\n")
	b.WriteString(r.Fitment.PromptLines())
	if chat != nil && chat.CustomerName != "" && chat.CustomerName != chat.ID {
		b.WriteString("\n\nCustomer name: ")
		b.WriteString(chat.CustomerName)
	}
	b.WriteString("\n\nCustomer message: ")
	b.WriteString(text)

	reply, err := r.AI.Generate(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGeneration)
	}
	return reply, nil
}
