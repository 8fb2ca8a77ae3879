// Package services – IntakeService
//
// This file implements the message-intake pipeline: the strictly sequential
// flow that takes one inbound customer message, resolves the conversation,
// persists the inbound message, classifies it, generates a reply, persists
// the reply, applies any status transition, and hands the reply to the
// outbound delivery collaborator.
//
// No step is retried here. Storage and generation failures propagate to the
// HTTP boundary as 5xx responses so the messaging channel's own retry
// redelivers the webhook. Delivery is fire-and-forget: its outcome never
// affects the pipeline result.
//
// Observability: HandleInbound is OpenTelemetry-instrumented and counts
// processed messages per intent in Prometheus.
package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voltworx/wa-chat-backend/internal/classify"
	"github.com/voltworx/wa-chat-backend/internal/domain"
)

// intakeMessages counts fully processed inbound messages by classified intent.
var intakeMessages = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "intake_messages_total",
		Help: "Total inbound messages processed by the intake pipeline, per intent.",
	},
	[]string{"intent"},
)

func init() {
	prometheus.MustRegister(intakeMessages)
}

// Generator produces reply text for a classified intent. Satisfied by
// respond.Responder.
type Generator interface {
	Generate(ctx context.Context, intent classify.Intent, chat *domain.Chat, text string) (string, error)
}

// Deliverer is the outbound message channel. Delivery is one-way; the
// pipeline logs failures but never fails on them.
type Deliverer interface {
	Deliver(ctx context.Context, to, text string) error
}

// IntakeService orchestrates the inbound pipeline.
type IntakeService struct {
	Conversations *ConversationService
	Classifier    *classify.Classifier
	Responder     Generator
	Deliverer     Deliverer

	// ReplyTimeout bounds the response-generation step (in practice the AI
	// call). Zero disables the bound.
	ReplyTimeout time.Duration

	// Now is a clock seam for tests; defaults to time.Now.
	Now func() time.Time
}

// HandleInbound runs the pipeline for one inbound message and returns the
// persisted outbound reply.
//
// Error semantics: ErrStorage aborts everything; a generation failure
// (respond.ErrGeneration) aborts after the inbound message was persisted,
// which is a recoverable partial state, not corruption.
func (s *IntakeService) HandleInbound(ctx context.Context, from, text string) (*domain.Message, error) {
	tr := otel.Tracer("services/IntakeService")
	ctx, span := tr.Start(ctx, "HandleInbound",
		trace.WithAttributes(attribute.String("chat.id", from)),
	)
	defer span.End()

	now := s.now()

	// Resolve (or create) the conversation.
	chat, err := s.Conversations.GetOrCreateChat(ctx, from, text, now)
	if err != nil {
		return nil, err
	}

	// Persist the inbound message before anything can fail downstream.
	if _, err := s.Conversations.AppendMessage(ctx, chat.ID, text, domain.SenderUser, now); err != nil {
		return nil, err
	}

	// Classify and generate.
	intent := s.Classifier.Classify(text)
	span.SetAttributes(attribute.String("intent", intent.Kind.String()))

	genCtx := ctx
	if s.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.ReplyTimeout)
		defer cancel()
	}
	reply, err := s.Responder.Generate(genCtx, intent, chat, text)
	if err != nil {
		return nil, err
	}

	// Persist the outbound message.
	outAt := s.now()
	out, err := s.Conversations.AppendMessage(ctx, chat.ID, reply, domain.SenderBot, outAt)
	if err != nil {
		return nil, err
	}

	// Apply the handoff transition after both messages are on record.
	if intent.Kind == classify.IntentHandoff {
		if err := s.Conversations.ApplyHandoff(ctx, chat.ID); err != nil {
			return nil, err
		}
	}

	intakeMessages.WithLabelValues(intent.Kind.String()).Inc()

	// Hand the reply to the outbound channel. Fire-and-forget.
	if s.Deliverer != nil {
		if derr := s.Deliverer.Deliver(ctx, chat.ID, reply); derr != nil {
			log.Warn().
				Err(derr).
				Str("chat_id", chat.ID).
				Msg("outbound delivery failed")
		}
	}

	return out, nil
}

func (s *IntakeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
