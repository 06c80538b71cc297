package remote

// Profile is the signed-in user's remote profile.
type Profile struct {
	Email  string  `json:"email"`
	Name   string  `json:"name"`
	Handle *string `json:"handle"`
}

// ProfileUpdate is the body of PUT /profile.
type ProfileUpdate struct {
	Name   string  `json:"name"`
	Handle *string `json:"handle,omitempty"`
}

// Facilitator identifies the user creating a session.
type Facilitator struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name"`
	Handle string `json:"handle,omitempty"`
}

// CreateSessionRequest is the body of PUT /session.
type CreateSessionRequest struct {
	Facilitator       Facilitator `json:"facilitator"`
	FacilitatorPoints bool        `json:"facilitatorPoints"`
	ConnectionID      string      `json:"connectionId,omitempty"`
}

// UpdateSessionRequest is the body of PUT /session/{id}.
type UpdateSessionRequest struct {
	VotesShown        bool `json:"votesShown"`
	FacilitatorPoints bool `json:"facilitatorPoints"`
}

// SetFacilitatorSessionRequest is the body of PUT /session/{id}/facilitator.
type SetFacilitatorSessionRequest struct {
	MarkActive   bool   `json:"markActive"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
	Name         string `json:"name,omitempty"`
	Handle       string `json:"handle,omitempty"`
}

// JoinSessionRequest is the body of PUT /session/{id}/user/{userId}.
type JoinSessionRequest struct {
	Name         string `json:"name"`
	Handle       string `json:"handle,omitempty"`
	ConnectionID string `json:"connectionId"`
}

type voteRequest struct {
	Vote string `json:"vote"`
}

type watchRequest struct {
	ConnectionID string `json:"connectionId"`
}
