package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"pointy/cmd/internal/errsink"
	"pointy/cmd/internal/pointing"
)

// formatSession renders one session as a small table. Votes stay hidden until shown.
func formatSession(s pointing.Session) string {
	var b strings.Builder

	role := "participant"
	if s.IsFacilitator {
		role = "facilitator"
	}
	fmt.Fprintf(&b, "session %s (%s)", s.SessionID, role)
	if s.VotesShown {
		b.WriteString(" votes shown")
	}
	b.WriteByte('\n')

	fmt.Fprintf(&b, "  facilitator  %-20s %s\n", displayName(s.Facilitator), voteCell(s.Facilitator, s.VotesShown, s.FacilitatorPoints))
	for _, p := range s.Participants {
		fmt.Fprintf(&b, "  participant  %-20s %s\n", displayName(p), voteCell(p, s.VotesShown, true))
	}
	return b.String()
}

func displayName(u pointing.User) string {
	name := u.Name
	if name == "" {
		name = u.UserID
	}
	if u.Handle != "" {
		name += " @" + u.Handle
	}
	return name
}

func voteCell(u pointing.User, shown, points bool) string {
	switch {
	case !points:
		return ""
	case u.CurrentVote == nil:
		return "-"
	case !shown:
		return "voted"
	default:
		return *u.CurrentVote
	}
}

// streamUpdates prints every session value delivered on updates, and acknowledges
// pending errors by printing them to errOut. It returns when ctx is done or updates
// closes.
func streamUpdates(ctx context.Context, out, errOut io.Writer, updates <-chan pointing.Session, errs *errsink.Sink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sess, ok := <-updates:
			if !ok {
				return nil
			}
			fmt.Fprint(out, formatSession(sess))
		case <-errs.C():
			if err := errs.Ack(); err != nil {
				fmt.Fprintln(errOut, "error:", err)
			}
		}
	}
}
