// WhatsApp webhook handlers.
//
// This file exposes the two channel-facing endpoints:
//   - GET  /webhook   (subscription verification handshake)
//   - POST /webhook   (inbound message notifications)
//
// The POST handler is deliberately forgiving: the channel redelivers on any
// non-2xx, so payloads that carry no processable user message (status
// callbacks, empty batches, unknown shapes) are acknowledged with 200 and
// dropped. Only real pipeline failures surface as 500 so the channel's retry
// gets another attempt at a message we could not process.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voltworx/wa-chat-backend/internal/respond"
)

//
// DTOs
//

// webhookPayload mirrors the WhatsApp Cloud API notification envelope, down
// to the single field set this service consumes.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// firstMessage digs the first user message out of the notification envelope.
// It returns ok=false for every shape that carries none.
func (p *webhookPayload) firstMessage() (from, body string, ok bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return "", "", false
	}
	msgs := p.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return "", "", false
	}
	from = strings.TrimSpace(msgs[0].From)
	body = strings.TrimSpace(msgs[0].Text.Body)
	if from == "" || body == "" {
		return "", "", false
	}
	return from, body, true
}

//
// Handlers
//

// VerifyWebhook godoc
// @ID          verifyWebhook
// @Summary     Webhook verification handshake
// @Description Answers the channel's subscription challenge when the verify token matches.
// @Tags        Webhook
// @Produce     plain
//
// @Param       hub.mode          query  string  true  "Must be 'subscribe'"  example(subscribe)
// @Param       hub.verify_token  query  string  true  "Configured verify token"
// @Param       hub.challenge     query  string  true  "Challenge to echo back"
//
// @Success     200  {string} string "Echoed challenge"
// @Failure     403  {object} handlers.ErrorResponse "Verification failed"
// @Router      /webhook [get]
func (h *Handlers) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	fail(c, http.StatusForbidden, ErrCodeForbidden, "webhook verification failed")
}

// ReceiveWebhook godoc
// @ID          receiveWebhook
// @Summary     Receive an inbound message notification
// @Description Runs the intake pipeline for the first user message in the notification.
// @Description Payloads without a processable message are acknowledged and ignored.
// @Tags        Webhook
// @Accept      json
// @Produce     json
//
// @Success     200  {object} map[string]string "processed or ignored"
// @Failure     500  {object} handlers.ErrorResponse "Pipeline failure"
// @Router      /webhook [post]
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		// Acknowledge junk so the channel does not redeliver it forever.
		ok(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	from, body, found := payload.firstMessage()
	if !found {
		ok(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if _, err := h.intake.HandleInbound(c.Request.Context(), from, body); err != nil {
		if errors.Is(err, respond.ErrGeneration) {
			fail(c, http.StatusInternalServerError, ErrCodeIntakeFailed, "response generation failed")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeIntakeFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, gin.H{"status": "processed"})
}
