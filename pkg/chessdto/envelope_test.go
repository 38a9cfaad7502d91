package chessdto

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeShapes(t *testing.T) {
	b, err := Encode(TagAborted, nil)
	if err != nil || string(b) != `["ABORTED"]` {
		t.Fatalf("tag-only frame = %s err=%v", b, err)
	}
	b, err = Encode(TagMoved, MovedPayload{From: 53, To: 37})
	if err != nil || string(b) != `["MOVED",{"from":53,"to":37}]` {
		t.Fatalf("moved frame = %s err=%v", b, err)
	}
	b, _ = Encode(TagCreated, JoinedPayload{LobbyID: "ABC123", Player: Player{ID: "p1", Name: "alice", IsOnline: true, Token: "t"}})
	want := `["CREATED",{"lobbyId":"ABC123","player":{"id":"p1","name":"alice","isOnline":true,"token":"t"}}]`
	if diff := cmp.Diff(want, string(b)); diff != "" {
		t.Fatalf("created frame:\n%s", diff)
	}
	if _, err := Encode(Tag("NOPE"), nil); err == nil {
		t.Fatalf("unknown tag should not encode")
	}
}

func TestDecodeBind(t *testing.T) {
	msg, err := Decode([]byte(`["MOVED",{"from":13,"to":5,"promotion":"Queen"}]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var p MovedPayload
	if err := msg.Bind(&p); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if diff := cmp.Diff(MovedPayload{From: 13, To: 5, Promotion: "Queen"}, p); diff != "" {
		t.Fatalf("payload:\n%s", diff)
	}

	msg, err = Decode([]byte(`["RESIGNED"]`))
	if err != nil || msg.Tag != TagResigned || msg.Payload != nil {
		t.Fatalf("tag-only decode: %+v err=%v", msg, err)
	}
	msg, _ = Decode([]byte(`["DRAW_OFFERED", null]`))
	if msg.Payload != nil {
		t.Fatalf("null payload should be dropped")
	}
}

func TestDecodeMalformed(t *testing.T) {
	frames := []string{
		``,
		`{}`,
		`[]`,
		`["MOVED",{},3]`,
		`[42]`,
		`["UNKNOWN"]`,
		`["MOVED",{"from":1`,
	}
	for _, f := range frames {
		if _, err := Decode([]byte(f)); !errors.Is(err, ErrDecode) {
			t.Fatalf("Decode(%q) err=%v", f, err)
		}
	}
	bad := []string{
		`["MOVED"]`,
		`["MOVED",{"from":"e2","to":37}]`,
		`["MOVED",{"from":53,"to":37,"extra":true}]`,
	}
	for _, f := range bad {
		msg, err := Decode([]byte(f))
		if err != nil {
			t.Fatalf("Decode(%q): %v", f, err)
		}
		var p MovedPayload
		if err := msg.Bind(&p); !errors.Is(err, ErrDecode) {
			t.Fatalf("Bind(%q) err=%v", f, err)
		}
	}
}

func TestDomainErrorStatus(t *testing.T) {
	if got := (DomainError{Code: "x"}).HTTPStatus(); got != 500 {
		t.Fatalf("default status = %d", got)
	}
	e := NotFound("lobby_not_found", "Lobby not found.")
	if e.HTTPStatus() != 404 || e.Error() != "Lobby not found." {
		t.Fatalf("unexpected %+v", e)
	}
}
