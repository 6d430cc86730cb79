package publish

import (
	"errors"
	"fmt"
)

// Kind classifies an outbound publish failure. Transport adapters map their
// own errors onto these kinds; the engine never inspects error text.
type Kind string

const (
	KindUnknown                Kind = "unknown"
	KindDestinationUnreachable Kind = "destination_unreachable"
	KindInsufficientPrivilege  Kind = "insufficient_privilege"
	KindCapabilityRejected     Kind = "capability_rejected"
)

var (
	// ErrSessionNotReady guards against publishing before both the image and
	// the playback URL are known. No outbound call is made.
	ErrSessionNotReady = errors.New("session not ready")
	// ErrNoDestinations is returned by PublishAll when the registry is empty.
	ErrNoDestinations = errors.New("no destinations configured")
)

// Error is a classified transport failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify wraps err with the given kind.
func Classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// UserMessage renders a failure for the admin who triggered the publish.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotReady):
		return "No post data found. Please create a post first."
	case errors.Is(err, ErrNoDestinations):
		return "⚠️ No destinations configured."
	}
	switch KindOf(err) {
	case KindDestinationUnreachable:
		return "❌ Destination not found. Check the channel id."
	case KindInsufficientPrivilege:
		return "❌ Failed to post. Make sure the bot is an admin in the channel."
	default:
		return "❌ Failed to post to channel."
	}
}
