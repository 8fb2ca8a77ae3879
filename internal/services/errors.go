// Package services defines the business logic for conversations and the
// message-intake pipeline. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
package services

import "errors"

var (
	// ErrChatNotFound indicates that the requested chat does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrEmptyMessage is returned when an append or inbound message carries
	// no text after trimming.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrInvalidSender is returned when a message sender is outside the
	// allowed set (user, bot, staff).
	ErrInvalidSender = errors.New("sender must be one of: user, bot, staff")

	// ErrStorage wraps backing-store failures (connectivity, constraint
	// violations that cannot be recovered). Pipeline callers map it to a
	// 5xx so the messaging channel redelivers the webhook.
	ErrStorage = errors.New("storage failure")
)
