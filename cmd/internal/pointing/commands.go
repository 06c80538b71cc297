package pointing

import (
	v1 "pointy/shared/contracts/pointing/v1"
)

// Command is a user intent. Decide turns it into a state transition plus outbound messages.
type Command interface {
	// Name is the command's metric and log label.
	Name() string
	apply(State) (State, []any)
}

// Decide applies cmd to s. It never mutates s and never performs I/O.
func Decide(s State, cmd Command) (State, []any) {
	return cmd.apply(s)
}

// LoadFacilitatorSession reattaches a facilitator to a session. It is a no-op when the
// session is already known.
type LoadFacilitatorSession struct {
	SessionID             string
	FacilitatorSessionKey string
	MarkActive            bool
}

func (LoadFacilitatorSession) Name() string { return "loadFacilitatorSession" }

func (c LoadFacilitatorSession) apply(s State) (State, []any) {
	if s.IsKnown(c.SessionID) {
		return s, nil
	}
	return s, []any{v1.LoadFacilitatorSessionRequest{
		Action:                v1.ActionLoadFacilitatorSession,
		SessionID:             c.SessionID,
		FacilitatorSessionKey: c.FacilitatorSessionKey,
		MarkActive:            c.MarkActive,
	}}
}

// LoadSession loads a participant view of a session.
type LoadSession struct {
	SessionID  string
	MarkActive bool
}

func (LoadSession) Name() string { return "loadSession" }

func (c LoadSession) apply(s State) (State, []any) {
	return s, []any{v1.LoadSessionRequest{
		Action:     v1.ActionLoadSession,
		SessionID:  c.SessionID,
		MarkActive: c.MarkActive,
	}}
}

// BeginSession asks the server to create a session facilitated by Facilitator.
type BeginSession struct {
	Facilitator       User
	FacilitatorPoints bool
}

func (BeginSession) Name() string { return "newSession" }

func (c BeginSession) apply(s State) (State, []any) {
	f := c.Facilitator
	if f.ConnectionID == "" {
		f.ConnectionID = s.ConnectionID
	}
	return s, []any{v1.StartSessionRequest{
		Action:            v1.ActionNewSession,
		Facilitator:       f.View(),
		FacilitatorPoints: c.FacilitatorPoints,
		ConnectionID:      s.ConnectionID,
	}}
}

// JoinSession joins a session as User. The connection id is filled in when known.
type JoinSession struct {
	SessionID string
	User      User
}

func (JoinSession) Name() string { return "joinSession" }

func (c JoinSession) apply(s State) (State, []any) {
	u := c.User
	if u.ConnectionID == "" {
		u.ConnectionID = s.ConnectionID
	}
	return s, []any{v1.JoinSessionRequest{
		Action:    v1.ActionJoinSession,
		SessionID: c.SessionID,
		User:      u.View(),
	}}
}

// Vote casts an opaque vote value.
type Vote struct {
	SessionID string
	Vote      string
}

func (Vote) Name() string { return "vote" }

func (c Vote) apply(s State) (State, []any) {
	return s, []any{v1.VoteRequest{
		Action:    v1.ActionVote,
		SessionID: c.SessionID,
		Vote:      c.Vote,
	}}
}

// ShowVotes reveals votes. An empty key falls back to the locally held facilitator key.
type ShowVotes struct {
	SessionID             string
	FacilitatorSessionKey string
}

func (ShowVotes) Name() string { return "showVotes" }

func (c ShowVotes) apply(s State) (State, []any) {
	return s, []any{v1.FacilitatorRequest{
		Action:                v1.ActionShowVotes,
		SessionID:             c.SessionID,
		FacilitatorSessionKey: facilitatorKey(s, c.SessionID, c.FacilitatorSessionKey),
	}}
}

// ClearVotes resets votes. An empty key falls back to the locally held facilitator key.
type ClearVotes struct {
	SessionID             string
	FacilitatorSessionKey string
}

func (ClearVotes) Name() string { return "clearVotes" }

func (c ClearVotes) apply(s State) (State, []any) {
	return s, []any{v1.FacilitatorRequest{
		Action:                v1.ActionClearVotes,
		SessionID:             c.SessionID,
		FacilitatorSessionKey: facilitatorKey(s, c.SessionID, c.FacilitatorSessionKey),
	}}
}

// SetFacilitatorSession installs a session obtained over HTTP as known and active,
// without a round trip.
type SetFacilitatorSession struct {
	Session v1.SessionView
}

func (SetFacilitatorSession) Name() string { return "setFacilitatorSession" }

func (c SetFacilitatorSession) apply(s State) (State, []any) {
	sess := FacilitatorFromView(c.Session)
	next := s.Clone()
	if !next.IsKnown(sess.SessionID) {
		next.Known = append(next.Known, sess)
	}
	a := sess.clone()
	next.Active = &a
	next.SessionActive = true
	return next, nil
}

// EndSession clears the active session locally.
type EndSession struct{}

func (EndSession) Name() string { return "endSession" }

func (EndSession) apply(s State) (State, []any) {
	next := s.Clone()
	next.Active = nil
	next.SessionActive = false
	return next, nil
}

func facilitatorKey(s State, sessionID, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if sess, ok := s.Lookup(sessionID); ok {
		return sess.FacilitatorSessionKey
	}
	return ""
}

// resyncEffects re-registers a reopened channel: a ping for the new connection id, then
// one load per known session. Facilitated sessions reload with their key.
func resyncEffects(s State) []any {
	out := []any{v1.PingRequest{Action: v1.ActionPing}}
	activeID := ""
	if s.SessionActive && s.Active != nil {
		activeID = s.Active.SessionID
	}
	for _, k := range s.Known {
		sess, _ := s.Lookup(k.SessionID)
		markActive := sess.SessionID == activeID
		if sess.IsFacilitator && sess.FacilitatorSessionKey != "" {
			out = append(out, v1.LoadFacilitatorSessionRequest{
				Action:                v1.ActionLoadFacilitatorSession,
				SessionID:             sess.SessionID,
				FacilitatorSessionKey: sess.FacilitatorSessionKey,
				MarkActive:            markActive,
			})
			continue
		}
		out = append(out, v1.LoadSessionRequest{
			Action:     v1.ActionLoadSession,
			SessionID:  sess.SessionID,
			MarkActive: markActive,
		})
	}
	return out
}
