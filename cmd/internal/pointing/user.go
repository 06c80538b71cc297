package pointing

import (
	"strings"

	"github.com/google/uuid"
)

// NewUser returns an anonymous user with a random v4 user id.
func NewUser(name, handle string) User {
	return User{
		UserID: uuid.NewString(),
		Name:   strings.TrimSpace(name),
		Handle: strings.TrimSpace(handle),
	}
}
