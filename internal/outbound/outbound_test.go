package outbound

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogDeliverer_Deliver(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDeliverer(zerolog.New(&buf))

	if err := d.Deliver(context.Background(), "27115550199", "your battery is ready"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"to":"27115550199"`) {
		t.Fatalf("log line missing recipient: %s", out)
	}
	if !strings.Contains(out, "outbound message") {
		t.Fatalf("log line missing event: %s", out)
	}
}
