// Package classify turns a raw inbound message into an Intent that drives
// response selection. Classification is pure string work: the text is
// lowercased once and tested against four fixed keyword sets with a fixed
// precedence. It never fails; anything unrecognized is IntentGeneral.
package classify

import (
	"strings"

	"github.com/voltworx/wa-chat-backend/internal/catalog"
)

// Kind enumerates the classified purpose of an inbound message.
type Kind int

const (
	// IntentGeneral is the fallback: the message matched no keyword set.
	// The AI path handles it, so no battery code is attached even when the
	// text mentioned a known vehicle.
	IntentGeneral Kind = iota
	// IntentHandoff covers both explicit agent requests and call-out or
	// breakdown messages; both route the chat to a staff member.
	IntentHandoff
	// IntentPriceQuote is a price enquiry for which a vehicle was resolved.
	IntentPriceQuote
	// IntentAddress asks for branch locations or contact details.
	IntentAddress
)

// String returns a stable name for the intent kind, used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case IntentHandoff:
		return "handoff"
	case IntentPriceQuote:
		return "price_quote"
	case IntentAddress:
		return "address"
	default:
		return "general"
	}
}

// Intent is the classification result. BatteryCode is set only for
// IntentPriceQuote.
type Intent struct {
	Kind        Kind
	BatteryCode string
}

// Keywords holds the substring sets the classifier tests, lowercase.
// Exposed so tests and deployments can swap in smaller or localized sets.
type Keywords struct {
	Handoff []string
	Callout []string
	Price   []string
	Address []string
}

// DefaultKeywords returns the store's standard keyword sets.
func DefaultKeywords() Keywords {
	return Keywords{
		Handoff: []string{"speak to agent", "human"},
		Callout: []string{"call-out", "call out", "breakdown"},
		Price:   []string{"price", "quote", "how much"},
		Address: []string{"address", "location", "where are you"},
	}
}

// Classifier resolves intents against a keyword configuration and a vehicle
// fitment table. It is immutable and safe for concurrent use.
type Classifier struct {
	keywords Keywords
	fitment  *catalog.Table
}

// New constructs a Classifier. A nil fitment table disables vehicle
// resolution, which turns every price enquiry into a general question.
func New(kw Keywords, fitment *catalog.Table) *Classifier {
	return &Classifier{keywords: kw, fitment: fitment}
}

// Classify inspects text and returns its Intent.
//
// Precedence is fixed: handoff/callout beat price, price (only when a vehicle
// resolved) beats address, address beats the general fallback. A price
// keyword without a resolvable vehicle falls through rather than producing a
// degraded quote.
func (c *Classifier) Classify(text string) Intent {
	lower := strings.ToLower(text)

	// Vehicle resolution happens once, regardless of which set matches.
	code, hasVehicle := c.fitment.Lookup(lower)

	switch {
	case containsAny(lower, c.keywords.Handoff), containsAny(lower, c.keywords.Callout):
		return Intent{Kind: IntentHandoff}
	case containsAny(lower, c.keywords.Price) && hasVehicle:
		return Intent{Kind: IntentPriceQuote, BatteryCode: code}
	case containsAny(lower, c.keywords.Address):
		return Intent{Kind: IntentAddress}
	default:
		return Intent{Kind: IntentGeneral}
	}
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
