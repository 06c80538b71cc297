// Package main is a CI-friendly smoke test for a pointing server's websocket.
//
// It drives two raw connections (facilitator and participant) through:
//   - ping -> PING with a connection id
//   - newSession -> SESSION_CREATED with a facilitator key
//   - joinSession, vote, showVotes, clearVotes -> SESSION_UPDATED on the facilitator
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "pointy/shared/contracts/pointing/v1"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name   string
	conn   *websocket.Conn
	connID string

	inbox chan v1.Event
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "", "Origin header to send")
		vote    = flag.String("vote", "5", "Vote value cast by the participant")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()

	f := mustConnect(root, "facilitator", *wsURL, *origin, *timeout)
	defer closeWS(f.conn)
	p := mustConnect(root, "participant", *wsURL, *origin, *timeout)
	defer closeWS(p.conn)

	if *verbose {
		fmt.Printf("connected: facilitator=%s participant=%s\n", f.connID, p.connID)
	}

	mustWrite(root, f, v1.StartSessionRequest{
		Action:       v1.ActionNewSession,
		Facilitator:  v1.UserView{UserID: uuid.NewString(), ConnectionID: f.connID, Name: "smoke-facilitator"},
		ConnectionID: f.connID,
	}, *timeout)
	var created v1.SessionView
	mustDecode(f.mustReadUntilType(root, v1.TypeSessionCreated, *timeout), &created)
	if created.SessionID == "" || created.FacilitatorSessionKey == "" {
		fatalf("SESSION_CREATED missing id or key: %+v", created)
	}

	userID := uuid.NewString()
	mustWrite(root, p, v1.JoinSessionRequest{
		Action:    v1.ActionJoinSession,
		SessionID: created.SessionID,
		User:      v1.UserView{UserID: userID, ConnectionID: p.connID, Name: "smoke-participant"},
	}, *timeout)
	joined := f.mustReadUpdate(root, *timeout)
	if !hasParticipant(joined, userID) {
		fatalf("participant %s missing after join: %+v", userID, joined.Participants)
	}

	mustWrite(root, p, v1.VoteRequest{Action: v1.ActionVote, SessionID: created.SessionID, Vote: *vote}, *timeout)
	_ = f.mustReadUpdate(root, *timeout)

	key := created.FacilitatorSessionKey
	mustWrite(root, f, v1.FacilitatorRequest{Action: v1.ActionShowVotes, SessionID: created.SessionID, FacilitatorSessionKey: key}, *timeout)
	shown := f.mustReadUpdate(root, *timeout)
	if !shown.VotesShown {
		fatalf("showVotes: votesShown=false")
	}

	mustWrite(root, f, v1.FacilitatorRequest{Action: v1.ActionClearVotes, SessionID: created.SessionID, FacilitatorSessionKey: key}, *timeout)
	cleared := f.mustReadUpdate(root, *timeout)
	for _, u := range cleared.Participants {
		if u.CurrentVote != nil {
			fatalf("clearVotes: %s still has a vote", u.UserID)
		}
	}

	fmt.Printf("OK: session_id=%s facilitator=%s participant=%s\n", created.SessionID, f.connID, p.connID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Event, 256),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	mustWrite(parent, c, v1.PingRequest{Action: v1.ActionPing}, stepTimeout)
	var ping v1.PingBody
	mustDecode(c.mustReadUntilType(parent, v1.TypePing, stepTimeout), &ping)
	if strings.TrimSpace(ping.ConnectionID) == "" {
		fatalf("PING missing connectionId (%s)", name)
	}
	c.connID = ping.ConnectionID
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)
		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			var ev v1.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := ev.Validate(); err != nil {
				c.fail(fmt.Errorf("bad event: %w", err))
				return
			}
			select {
			case c.inbox <- ev:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

// mustReadUntilType skips PING replies from other pings and fails on anything else.
func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Event {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case ev, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if ev.Type == wantType {
				return ev
			}
			if ev.Type == v1.TypeErrorEncountered {
				var body v1.ErrorBody
				_ = ev.DecodeBody(&body)
				fatalf("server error (%s): %q", c.name, body.Message)
			}
			if ev.Type == v1.TypePing {
				continue
			}
			fatalf("unexpected event (%s): got=%q want=%q", c.name, ev.Type, wantType)
		}
	}
}

func (c *smokeClient) mustReadUpdate(parent context.Context, stepTimeout time.Duration) v1.SessionView {
	var s v1.SessionView
	mustDecode(c.mustReadUntilType(parent, v1.TypeSessionUpdated, stepTimeout), &s)
	return s
}

func hasParticipant(s v1.SessionView, userID string) bool {
	for _, u := range s.Participants {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

func mustWrite(parent context.Context, c *smokeClient, msg any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(msg)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed (%s): %v", c.name, err)
	}
}

func mustDecode(ev v1.Event, dst any) {
	if err := ev.DecodeBody(dst); err != nil {
		fatalf("decode %s body: %v", ev.Type, err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
