package pointing

import (
	"fmt"

	v1 "pointy/shared/contracts/pointing/v1"
)

// Reduce applies one inbound event and returns the next state. The input is never mutated.
//
// ERROR_ENCOUNTERED leaves the state unchanged; reporting it is the caller's job.
// Unhandled types return ErrUnknownEvent together with the unchanged state.
func Reduce(s State, ev v1.Event) (State, error) {
	switch ev.Type {
	case v1.TypeSessionCreated:
		var body v1.SessionView
		if err := ev.DecodeBody(&body); err != nil {
			return s, decodeErr(ev, err)
		}
		sess := FacilitatorFromView(body)
		return activate(upsert(s, sess), sess.SessionID), nil

	case v1.TypeFacilitatorSessionLoaded:
		var body v1.FacilitatorSessionLoadedBody
		if err := ev.DecodeBody(&body); err != nil {
			return s, decodeErr(ev, err)
		}
		sess := FacilitatorFromView(body.Session)
		next := upsert(s, sess)
		if body.MarkActive {
			next = activate(next, sess.SessionID)
		}
		return next, nil

	case v1.TypeSessionLoaded:
		var body v1.SessionView
		if err := ev.DecodeBody(&body); err != nil {
			return s, decodeErr(ev, err)
		}
		return upsert(s, FromView(body)), nil

	case v1.TypeSessionUpdated:
		var body v1.SessionView
		if err := ev.DecodeBody(&body); err != nil {
			return s, decodeErr(ev, err)
		}
		return applyUpdate(s, FromView(body)), nil

	case v1.TypePing:
		var body v1.PingBody
		if err := ev.DecodeBody(&body); err != nil {
			return s, decodeErr(ev, err)
		}
		next := s.Clone()
		next.ConnectionID = body.ConnectionID
		return next, nil

	case v1.TypeErrorEncountered:
		return s, nil

	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
}

func decodeErr(ev v1.Event, err error) error {
	return fmt.Errorf("pointing: decode %s body: %w", ev.Type, err)
}

// upsert replaces the known session with the same id in place, or appends it.
func upsert(s State, sess Session) State {
	next := s.Clone()
	if i := next.knownIndex(sess.SessionID); i >= 0 {
		next.Known[i] = sess.clone()
	} else {
		next.Known = append(next.Known, sess.clone())
	}
	return next
}

// activate marks the known session id active. s must already be a private copy.
func activate(s State, id string) State {
	i := s.knownIndex(id)
	if i < 0 {
		return s
	}
	a := s.Known[i].clone()
	s.Active = &a
	s.SessionActive = true
	return s
}

// applyUpdate replaces the matching known session wholesale (or appends it). The
// active copy only takes the server-owned fields so its local facilitator fields survive.
func applyUpdate(s State, sess Session) State {
	next := upsert(s, sess)
	if next.Active != nil && next.Active.SessionID == sess.SessionID {
		u := sess.clone()
		next.Active.Participants = u.Participants
		next.Active.VotesShown = u.VotesShown
		next.Active.Facilitator = u.Facilitator
	}
	return next
}
