package util

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a UUID string for entities whose creation order carries no
// meaning (nodes, flows, edges, subscriptions).
func NewID() string { return uuid.NewString() }

// NewMessageID returns a ULID string. Message ids sort by creation time,
// which keeps store listings and log output in send order.
func NewMessageID() string { return ulid.Make().String() }
