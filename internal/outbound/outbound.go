// Package outbound is the delivery edge of the pipeline.
//
// The channel integration (the WhatsApp Cloud send API) lives behind the
// services.Deliverer interface; this package provides the logging
// implementation used until a real sender is wired in. Delivery is
// fire-and-forget for the pipeline either way.
package outbound

import (
	"context"

	"github.com/rs/zerolog"
)

// LogDeliverer records outbound messages in the structured log instead of
// sending them anywhere.
type LogDeliverer struct {
	Log zerolog.Logger
}

// NewLogDeliverer returns a deliverer that writes each outbound message to lg.
func NewLogDeliverer(lg zerolog.Logger) *LogDeliverer {
	return &LogDeliverer{Log: lg}
}

// Deliver logs the message and reports success.
func (d *LogDeliverer) Deliver(ctx context.Context, to, text string) error {
	d.Log.Info().
		Str("to", to).
		Int("chars", len(text)).
		Msg("outbound message")
	return nil
}
