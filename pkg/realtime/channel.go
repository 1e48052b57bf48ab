package realtime

import (
	"context"

	"github.com/voltdesk/voltdesk/pkg/realtime/protocol"
)

// SessionInfo is what the negotiation collaborator hands back: a
// short-lived credential and the address of the duplex channel.
type SessionInfo struct {
	SessionToken string
	JoinAddress  string
}

// Negotiator mints session credentials. Consumed once per session start.
type Negotiator interface {
	CreateSession(ctx context.Context) (SessionInfo, error)
}

// Channel is the duplex event channel collaborator. Transport specifics
// (media framing, reconnection) live behind this interface.
type Channel interface {
	// Send writes one outbound frame. It may fail transiently while the
	// transport is congested; callers retry within bounds.
	Send(ctx context.Context, frame any) error

	// Events yields decoded inbound events. Closed when the channel ends.
	Events() <-chan protocol.RawEvent

	// Err returns the terminal transport error, if any, once Events is
	// closed.
	Err() error

	Close() error
}

// Dialer opens the duplex channel after negotiation.
type Dialer interface {
	Dial(ctx context.Context, info SessionInfo) (Channel, error)
}
