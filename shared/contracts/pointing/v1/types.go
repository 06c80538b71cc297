package v1

import "encoding/json"

// ---- Shared views ----

// UserView is a participant or facilitator as it appears on the wire.
type UserView struct {
	UserID       string  `json:"userId,omitempty"`
	ConnectionID string  `json:"connectionId,omitempty"`
	Name         string  `json:"name,omitempty"`
	Handle       string  `json:"handle,omitempty"`
	CurrentVote  *string `json:"currentVote,omitempty"`
}

// SessionView is the session body carried by session events and HTTP responses.
// FacilitatorSessionKey is only present in facilitator views.
type SessionView struct {
	SessionID             string     `json:"sessionId"`
	VotesShown            bool       `json:"votesShown"`
	FacilitatorSessionKey string     `json:"facilitatorSessionKey,omitempty"`
	Facilitator           UserView   `json:"facilitator"`
	FacilitatorPoints     bool       `json:"facilitatorPoints"`
	Participants          []UserView `json:"participants"`
}

// ---- Inbound bodies ----

// FacilitatorSessionLoadedBody is the body of FACILITATOR_SESSION_LOADED.
type FacilitatorSessionLoadedBody struct {
	Session    SessionView `json:"session"`
	MarkActive bool        `json:"markActive"`
}

// PingBody is the body of PING.
type PingBody struct {
	Message      string `json:"message,omitempty"`
	ConnectionID string `json:"connectionId"`
}

// ErrorBody is the body of ERROR_ENCOUNTERED.
type ErrorBody struct {
	Message string `json:"message"`
}

// ---- Outbound requests ----

// PingRequest is the heartbeat keep-alive.
type PingRequest struct {
	Action string `json:"action"`
}

// StartSessionRequest asks the server to create a session.
//
// Server revisions disagree on the flag name, so it is written under both
// facilitatorPoints and facilitatorParticipating and either is accepted on decode.
type StartSessionRequest struct {
	Action            string   `json:"action"`
	Facilitator       UserView `json:"facilitator"`
	FacilitatorPoints bool     `json:"facilitatorPoints"`
	ConnectionID      string   `json:"connectionId,omitempty"`
}

type startSessionWire struct {
	Action                   string   `json:"action"`
	Facilitator              UserView `json:"facilitator"`
	FacilitatorPoints        *bool    `json:"facilitatorPoints,omitempty"`
	FacilitatorParticipating *bool    `json:"facilitatorParticipating,omitempty"`
	ConnectionID             string   `json:"connectionId,omitempty"`
}

// MarshalJSON writes the facilitator flag under both historical names.
func (r StartSessionRequest) MarshalJSON() ([]byte, error) {
	points := r.FacilitatorPoints
	return json.Marshal(startSessionWire{
		Action:                   r.Action,
		Facilitator:              r.Facilitator,
		FacilitatorPoints:        &points,
		FacilitatorParticipating: &points,
		ConnectionID:             r.ConnectionID,
	})
}

// UnmarshalJSON accepts either flag name; facilitatorPoints wins when both are set.
func (r *StartSessionRequest) UnmarshalJSON(b []byte) error {
	var w startSessionWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	r.Action = w.Action
	r.Facilitator = w.Facilitator
	r.ConnectionID = w.ConnectionID
	switch {
	case w.FacilitatorPoints != nil:
		r.FacilitatorPoints = *w.FacilitatorPoints
	case w.FacilitatorParticipating != nil:
		r.FacilitatorPoints = *w.FacilitatorParticipating
	default:
		r.FacilitatorPoints = false
	}
	return nil
}

// LoadFacilitatorSessionRequest reattaches a facilitator to an existing session.
type LoadFacilitatorSessionRequest struct {
	Action                string `json:"action"`
	SessionID             string `json:"sessionId"`
	FacilitatorSessionKey string `json:"facilitatorSessionKey"`
	MarkActive            bool   `json:"markActive"`
}

// LoadSessionRequest loads a participant view of a session.
type LoadSessionRequest struct {
	Action     string `json:"action"`
	SessionID  string `json:"sessionId"`
	MarkActive bool   `json:"markActive"`
}

// JoinSessionRequest joins a session as a participant.
type JoinSessionRequest struct {
	Action    string   `json:"action"`
	SessionID string   `json:"sessionId"`
	User      UserView `json:"user"`
}

// VoteRequest casts a vote. The value is opaque.
type VoteRequest struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
	Vote      string `json:"vote"`
}

// FacilitatorRequest is used by showVotes and clearVotes.
type FacilitatorRequest struct {
	Action                string `json:"action"`
	SessionID             string `json:"sessionId"`
	FacilitatorSessionKey string `json:"facilitatorSessionKey"`
}
