package v1

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      Event
		wantErr bool
		known   bool
	}{
		{name: "ping", in: Event{Type: TypePing}, known: true},
		{name: "updated", in: Event{Type: TypeSessionUpdated}, known: true},
		{name: "missing type", in: Event{Type: "  "}, wantErr: true},
		{name: "unknown type", in: Event{Type: "SOMETHING_ELSE"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.in.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err=%v wantErr=%v", err, tc.wantErr)
			}
			if got := tc.in.Known(); got != tc.known {
				t.Fatalf("Known()=%v want=%v", got, tc.known)
			}
		})
	}
}

func TestStartSessionRequest_WritesBothFlagNames(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(StartSessionRequest{
		Action:            ActionNewSession,
		Facilitator:       UserView{UserID: "u1", Name: "Fac"},
		FacilitatorPoints: true,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"facilitatorPoints":true`) || !strings.Contains(s, `"facilitatorParticipating":true`) {
		t.Fatalf("unexpected encoding: %s", s)
	}
	if !strings.Contains(s, `"action":"newSession"`) {
		t.Fatalf("missing action: %s", s)
	}
}

func TestStartSessionRequest_AcceptsEitherFlagName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{in: `{"action":"newSession","facilitator":{},"facilitatorParticipating":true}`, want: true},
		{in: `{"action":"newSession","facilitator":{},"facilitatorPoints":true}`, want: true},
		{in: `{"action":"newSession","facilitator":{},"facilitatorPoints":false,"facilitatorParticipating":true}`, want: false},
		{in: `{"action":"newSession","facilitator":{}}`, want: false},
	}

	for _, tc := range cases {
		var r StartSessionRequest
		if err := json.Unmarshal([]byte(tc.in), &r); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if r.FacilitatorPoints != tc.want {
			t.Fatalf("decode %s: FacilitatorPoints=%v want=%v", tc.in, r.FacilitatorPoints, tc.want)
		}
	}
}

func TestEventDecodeBody_Missing(t *testing.T) {
	t.Parallel()

	var p PingBody
	if err := (Event{Type: TypePing}).DecodeBody(&p); err == nil {
		t.Fatalf("expected error for missing body")
	}
	if err := (Event{Type: TypePing, Body: json.RawMessage(`{"connectionId":"c-1"}`)}).DecodeBody(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ConnectionID != "c-1" {
		t.Fatalf("connectionId=%q want=%q", p.ConnectionID, "c-1")
	}
}
