package pointing

import (
	"slices"

	v1 "pointy/shared/contracts/pointing/v1"
)

// User is a facilitator or participant.
// CurrentVote is opaque: it is displayed or hidden, never interpreted.
type User struct {
	UserID       string
	ConnectionID string
	Name         string
	Handle       string
	CurrentVote  *string
}

// Session is one planning-poker session as seen by this client.
//
// IsFacilitator and FacilitatorSessionKey are local to the facilitator's view and are
// never overwritten by participant-shaped updates of the active session.
type Session struct {
	SessionID         string
	Facilitator       User
	Participants      []User
	FacilitatorPoints bool
	VotesShown        bool

	IsFacilitator         bool
	FacilitatorSessionKey string
}

// Participant returns the participant with the given user id.
func (s Session) Participant(userID string) (User, bool) {
	for _, u := range s.Participants {
		if u.UserID == userID {
			return u, true
		}
	}
	return User{}, false
}

// State is the whole local view. The zero value is an empty, inactive state.
type State struct {
	SessionActive bool
	Active        *Session
	Known         []Session
	ConnectionID  string
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{
		SessionActive: s.SessionActive,
		ConnectionID:  s.ConnectionID,
	}
	if s.Active != nil {
		a := s.Active.clone()
		out.Active = &a
	}
	if s.Known != nil {
		out.Known = make([]Session, len(s.Known))
		for i, k := range s.Known {
			out.Known[i] = k.clone()
		}
	}
	return out
}

// IsKnown reports whether a session with id is in the known set.
func (s State) IsKnown(id string) bool {
	return s.knownIndex(id) >= 0
}

// Lookup resolves a session by id, preferring the active copy (it carries the local
// facilitator fields).
func (s State) Lookup(id string) (Session, bool) {
	if s.Active != nil && s.Active.SessionID == id {
		return s.Active.clone(), true
	}
	if i := s.knownIndex(id); i >= 0 {
		return s.Known[i].clone(), true
	}
	return Session{}, false
}

func (s State) knownIndex(id string) int {
	return slices.IndexFunc(s.Known, func(k Session) bool { return k.SessionID == id })
}

func (s Session) clone() Session {
	out := s
	out.Facilitator = s.Facilitator.clone()
	if s.Participants != nil {
		out.Participants = make([]User, len(s.Participants))
		for i, u := range s.Participants {
			out.Participants[i] = u.clone()
		}
	}
	return out
}

func (u User) clone() User {
	if u.CurrentVote != nil {
		v := *u.CurrentVote
		u.CurrentVote = &v
	}
	return u
}

// ---- wire conversion ----

// FromView converts a wire session as-is (participant shape).
func FromView(v v1.SessionView) Session {
	s := Session{
		SessionID:             v.SessionID,
		Facilitator:           userFromView(v.Facilitator),
		FacilitatorPoints:     v.FacilitatorPoints,
		VotesShown:            v.VotesShown,
		FacilitatorSessionKey: v.FacilitatorSessionKey,
	}
	if v.Participants != nil {
		s.Participants = make([]User, len(v.Participants))
		for i, p := range v.Participants {
			s.Participants[i] = userFromView(p)
		}
	}
	return s
}

// FacilitatorFromView converts a wire session into the facilitator's view of it.
func FacilitatorFromView(v v1.SessionView) Session {
	s := FromView(v)
	s.IsFacilitator = true
	return s
}

// View converts a user back to its wire shape.
func (u User) View() v1.UserView {
	out := v1.UserView{
		UserID:       u.UserID,
		ConnectionID: u.ConnectionID,
		Name:         u.Name,
		Handle:       u.Handle,
	}
	if u.CurrentVote != nil {
		v := *u.CurrentVote
		out.CurrentVote = &v
	}
	return out
}

func userFromView(v v1.UserView) User {
	u := User{
		UserID:       v.UserID,
		ConnectionID: v.ConnectionID,
		Name:         v.Name,
		Handle:       v.Handle,
	}
	if v.CurrentVote != nil {
		s := *v.CurrentVote
		u.CurrentVote = &s
	}
	return u
}
