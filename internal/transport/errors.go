package transport

import (
	"errors"
	"fmt"
)

// DeliveryClass says how a failed delivery should be handled by the caller.
type DeliveryClass int

const (
	// DeliveryTransient covers rate limiting, timeouts and connectivity
	// problems. Log and move on; the send may succeed later.
	DeliveryTransient DeliveryClass = iota

	// DeliveryRecipient means this recipient is unreachable (blocked the
	// bot, deleted the account). Other recipients are unaffected.
	DeliveryRecipient

	// DeliveryFatal means the bot itself is broken (bad token, duplicate
	// poller). Continuing would fail for every recipient.
	DeliveryFatal
)

func (c DeliveryClass) String() string {
	switch c {
	case DeliveryTransient:
		return "transient"
	case DeliveryRecipient:
		return "recipient"
	case DeliveryFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// DeliveryError wraps a send failure with its class.
type DeliveryError struct {
	Class DeliveryClass
	Err   error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("delivery %s: %v", e.Class, e.Err) }
func (e *DeliveryError) Unwrap() error { return e.Err }

func NewDeliveryError(class DeliveryClass, err error) *DeliveryError {
	return &DeliveryError{Class: class, Err: err}
}

// ClassOf extracts the delivery class from err.
// Unclassified errors are treated as transient.
func ClassOf(err error) DeliveryClass {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Class
	}
	return DeliveryTransient
}
