// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

// SessionKey addresses one submitter's capture session.
type SessionKey string

// DestinationID is a broadcast target: a numeric chat id or an @channel name.
type DestinationID string

// BroadcastID identifies one asynchronous publish-to-all job.
type BroadcastID string

func NewBroadcastID() BroadcastID {
	return BroadcastID(uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}
