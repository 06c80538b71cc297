// Package v1 defines the pointing socket protocol: the outbound action messages a client
// writes and the inbound {type, body} events the server pushes.
//
// It is shared by the client runtime and its tests so the wire shapes stay authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"strings"
)

// Outbound action discriminators (client -> server).
const (
	ActionPing                   = "ping"
	ActionNewSession             = "newSession"
	ActionLoadFacilitatorSession = "loadFacilitatorSession"
	ActionLoadSession            = "loadSession"
	ActionJoinSession            = "joinSession"
	ActionVote                   = "vote"
	ActionShowVotes              = "showVotes"
	ActionClearVotes             = "clearVotes"
)

// Inbound event types (server -> client).
const (
	// TypeSessionCreated answers newSession with the facilitator view of the new session.
	TypeSessionCreated = "SESSION_CREATED"
	// TypeFacilitatorSessionLoaded answers loadFacilitatorSession.
	TypeFacilitatorSessionLoaded = "FACILITATOR_SESSION_LOADED"
	// TypeSessionLoaded answers loadSession with a participant view.
	TypeSessionLoaded = "SESSION_LOADED"
	// TypeSessionUpdated is pushed to every watcher when a session changes.
	TypeSessionUpdated = "SESSION_UPDATED"
	// TypePing acknowledges a ping and carries the connection id.
	TypePing = "PING"
	// TypeErrorEncountered reports a server-side failure for a socket action.
	TypeErrorEncountered = "ERROR_ENCOUNTERED"
)

// Event is the canonical inbound wire wrapper.
type Event struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// Validate performs structural validation. Unknown types are not an error here;
// see Known.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}
	return nil
}

// Known reports whether the event type is part of the v1 taxonomy.
func (e Event) Known() bool {
	switch e.Type {
	case TypeSessionCreated,
		TypeFacilitatorSessionLoaded,
		TypeSessionLoaded,
		TypeSessionUpdated,
		TypePing,
		TypeErrorEncountered:
		return true
	default:
		return false
	}
}

// DecodeBody unmarshals the event body into dst.
func (e Event) DecodeBody(dst any) error {
	if len(e.Body) == 0 {
		return errors.New("missing field: body")
	}
	return json.Unmarshal(e.Body, dst)
}
